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

// Package batch rewrites an ordered list of files in place.
//
// Each existing target is read once, run through the rewriter and written
// back once. Missing targets are reported and skipped. Any other I/O failure
// stops the run; files rewritten before the failure stay rewritten.
package batch

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/walteh/routefix/pkg/rewrite"
	"github.com/walteh/routefix/pkg/target"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidEncoding is returned for a target that is not valid UTF-8
var ErrInvalidEncoding = errors.New("invalid UTF-8")

// 📣 Reporter receives the per file status events of a run
type Reporter interface {
	Fixing(ctx context.Context, path string)
	Fixed(ctx context.Context, path string, replacements int, modified bool)
	NotFound(ctx context.Context, path string)
	Patch(ctx context.Context, path string, diff string)
	Done(ctx context.Context)
}

// 🔧 Options tunes a run
type Options struct {
	Root     string // Directory relative targets are resolved against
	DryRun   bool   // Report the would-be change instead of writing it
	Parallel int    // Files processed at once, <= 1 means sequential
}

// 🏃 Runner executes a batch rewrite
type Runner struct {
	rewriter *rewrite.Rewriter
	reporter Reporter
	opts     Options
}

// 🏗️ NewRunner creates a runner
func NewRunner(rw *rewrite.Rewriter, reporter Reporter, opts Options) (*Runner, error) {
	if rw == nil {
		return nil, errors.Errorf("rewriter is required")
	}
	if reporter == nil {
		return nil, errors.Errorf("reporter is required")
	}
	return &Runner{
		rewriter: rw,
		reporter: reporter,
		opts:     opts,
	}, nil
}

// 🏃 Run processes targets in order and reports completion once all succeed
func (r *Runner) Run(ctx context.Context, targets []string) error {
	var err error
	if r.opts.Parallel > 1 {
		err = r.runParallel(ctx, targets)
	} else {
		err = r.runSync(ctx, targets)
	}
	if err != nil {
		return err
	}

	r.reporter.Done(ctx)
	return nil
}

// 🔄 runSync handles one file at a time
func (r *Runner) runSync(ctx context.Context, targets []string) error {
	for _, path := range targets {
		if err := ctx.Err(); err != nil {
			return errors.Errorf("run cancelled before %s: %w", path, err)
		}
		if err := r.fixFile(ctx, path, r.reporter); err != nil {
			return err
		}
	}
	return nil
}

// ⚡ runParallel fans files out over a bounded errgroup. Status events are
// buffered per file and replayed in list order, stopping at the first file
// that failed.
func (r *Runner) runParallel(ctx context.Context, targets []string) error {
	recorders := make([]*recorder, len(targets))
	failed := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)

	for i, path := range targets {
		rec := &recorder{}
		recorders[i] = rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				failed[i] = true
				return errors.Errorf("run cancelled before %s: %w", path, err)
			}
			if err := r.fixFile(gctx, path, rec); err != nil {
				failed[i] = true
				return err
			}
			return nil
		})
	}

	err := g.Wait()

	stop := len(recorders)
	for i, rec := range recorders {
		rec.replay(r.reporter)
		if failed[i] {
			stop = i + 1
			break
		}
	}

	if !r.opts.DryRun {
		for _, path := range unreportedWrites(targets, recorders, stop) {
			zerolog.Ctx(ctx).Warn().Str("file", path).Msg("file was rewritten but not reported because an earlier file failed")
		}
	}

	return err
}

// unreportedWrites lists targets from index from onward that finished
// writing even though their status lines were never replayed.
func unreportedWrites(targets []string, recorders []*recorder, from int) []string {
	var out []string
	for i := from; i < len(recorders) && i < len(targets); i++ {
		if recorders[i].fixed {
			out = append(out, targets[i])
		}
	}
	return out
}

// 🛠️ fixFile runs the read, rewrite, write cycle for one target
func (r *Runner) fixFile(ctx context.Context, path string, rep Reporter) error {
	logger := zerolog.Ctx(ctx).With().Str("file", path).Logger()
	full := target.Join(r.opts.Root, path)

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		rep.NotFound(ctx, path)
		return nil
	}
	if err != nil {
		return errors.Errorf("checking %s: %w", path, err)
	}

	rep.Fixing(ctx, path)

	content, err := os.ReadFile(full)
	if err != nil {
		return errors.Errorf("reading %s: %w", path, err)
	}
	if !utf8.Valid(content) {
		return errors.Errorf("decoding %s as UTF-8: %w", path, ErrInvalidEncoding)
	}

	result, err := r.rewriter.Rewrite(ctx, path, bytes.NewReader(content))
	if err != nil {
		return errors.Errorf("rewriting %s: %w", path, err)
	}

	if result.ReplacementCount == 0 {
		logger.Debug().Msg("no rule matched, writing content back unchanged")
	}

	if r.opts.DryRun {
		rep.Patch(ctx, path, rewrite.Diff(result.OriginalContent, result.ModifiedContent))
	} else if err := os.WriteFile(full, result.ModifiedContent, info.Mode().Perm()); err != nil {
		return errors.Errorf("writing %s: %w", path, err)
	}

	rep.Fixed(ctx, path, result.ReplacementCount, result.WasModified)
	return nil
}

// recorder buffers reporter events for ordered replay
type recorder struct {
	events []func(Reporter)
	fixed  bool
}

func (rec *recorder) Fixing(ctx context.Context, path string) {
	rec.events = append(rec.events, func(rep Reporter) { rep.Fixing(ctx, path) })
}

func (rec *recorder) Fixed(ctx context.Context, path string, replacements int, modified bool) {
	rec.fixed = true
	rec.events = append(rec.events, func(rep Reporter) { rep.Fixed(ctx, path, replacements, modified) })
}

func (rec *recorder) NotFound(ctx context.Context, path string) {
	rec.events = append(rec.events, func(rep Reporter) { rep.NotFound(ctx, path) })
}

func (rec *recorder) Patch(ctx context.Context, path string, diff string) {
	rec.events = append(rec.events, func(rep Reporter) { rep.Patch(ctx, path, diff) })
}

func (rec *recorder) Done(ctx context.Context) {}

func (rec *recorder) replay(rep Reporter) {
	for _, ev := range rec.events {
		ev(rep)
	}
}
