// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/routefix/pkg/batch"
	"github.com/walteh/routefix/pkg/config"
	"github.com/walteh/routefix/pkg/log"
	"github.com/walteh/routefix/pkg/rewrite"
	"github.com/walteh/routefix/pkg/target"
	"gitlab.com/tozd/go/errors"
)

// rootOpts holds the flags shared by every command
type rootOpts struct {
	configFile string
	root       string
	dryRun     bool
	parallel   int
	debug      bool
}

// NewCommand builds the routefix command tree
func NewCommand() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:   "routefix [paths...]",
		Short: "Drop the context parameter from Next.js route handlers",
		Long: `routefix rewrites route handler files in place. For every target it:
1. Removes the unused "context: any" parameter from the handler signature
2. Replaces "const { name } = context.params;" with a lookup of the last URL path segment
3. Writes the file back and prints its status

Targets come from the positional arguments, then the config file, then the
built-in route list.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(setupLogging(commandContext(cmd), cmd.ErrOrStderr(), opts.debug))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	addRootFlags(cmd, opts)

	cmd.AddCommand(
		newRulesCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command, opts *rootOpts) {
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (.yaml, .yml, .json or .hcl), built-in defaults when empty")
	cmd.PersistentFlags().StringVarP(&opts.root, "root", "C", "", "directory targets are relative to, overrides the config root")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the changes instead of writing them")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 1, "number of files to process at once")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// setupLogging attaches a zerolog console logger to ctx
func setupLogging(ctx context.Context, w io.Writer, debug bool) context.Context {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
	return logger.WithContext(ctx)
}

// loadConfig picks the config file or the built-in job and applies flag overrides
func (o *rootOpts) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.LoadConfig(ctx, o.configFile)
		if err != nil {
			return nil, errors.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if o.root != "" {
		cfg.Root = o.root
	}

	return cfg, nil
}

func (o *rootOpts) run(ctx context.Context, out io.Writer, args []string) error {
	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return err
	}

	patterns := cfg.Targets
	if len(args) > 0 {
		patterns = args
	}

	rw, err := rewrite.New(cfg.Rules)
	if err != nil {
		return errors.Errorf("creating rewriter: %w", err)
	}

	targets, err := target.Resolve(ctx, cfg.Root, patterns)
	if err != nil {
		return errors.Errorf("resolving targets: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("root", cfg.Root).
		Str("config", cfg.Location()).
		Int("targets", len(targets)).
		Bool("dry_run", o.dryRun).
		Int("parallel", o.parallel).
		Msg("starting batch")

	runner, err := batch.NewRunner(rw, log.New(out), batch.Options{
		Root:     cfg.Root,
		DryRun:   o.dryRun,
		Parallel: o.parallel,
	})
	if err != nil {
		return errors.Errorf("creating runner: %w", err)
	}

	if err := runner.Run(ctx, targets); err != nil {
		return errors.Errorf("running batch: %w", err)
	}

	return nil
}
