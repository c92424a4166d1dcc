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

// Package log prints the per file status lines of a rewrite run and mirrors
// them into zerolog.
package log

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎯 Counts tallies what a batch run did
type Counts struct {
	Fixed     int // Files written back
	Unchanged int // Files written back with no rule match
	NotFound  int // Files skipped because they do not exist
}

// 🎯 Console prints the human readable status lines of a batch run and
// mirrors each one into the zerolog logger carried by the context
type Console struct {
	console io.Writer
	mu      sync.Mutex
	counts  Counts
}

// 🏭 New creates a console writing to w
func New(w io.Writer) *Console {
	return &Console{console: w}
}

// 📝 Fixing announces that path is about to be rewritten
func (c *Console) Fixing(ctx context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.console, "Fixing: %s\n", path)
	zerolog.Ctx(ctx).Debug().Str("file", path).Msg("fixing file")
}

// 📝 Fixed confirms path was written back
func (c *Console) Fixed(ctx context.Context, path string, replacements int, modified bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if modified {
		c.counts.Fixed++
	} else {
		c.counts.Unchanged++
	}

	fmt.Fprintf(c.console, "%s Fixed: %s\n", color.GreenString("✓"), path)
	zerolog.Ctx(ctx).Debug().
		Str("file", path).
		Int("replacements", replacements).
		Bool("modified", modified).
		Msg("fixed file")
}

// 📝 NotFound reports a target that does not exist
func (c *Console) NotFound(ctx context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts.NotFound++

	fmt.Fprintf(c.console, "%s Not found: %s\n", color.RedString("✗"), path)
	zerolog.Ctx(ctx).Debug().Str("file", path).Msg("file not found")
}

// 📝 Patch prints the changed lines of a dry run
func (c *Console) Patch(ctx context.Context, path string, diff string) {
	if diff == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "-"):
			line = color.RedString("%s", line)
		case strings.HasPrefix(line, "+"):
			line = color.GreenString("%s", line)
		}
		fmt.Fprintf(c.console, "    %s\n", line)
	}
}

// 📝 Done prints the completion line
func (c *Console) Done(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.console)
	fmt.Fprintln(c.console, "All files processed!")

	zerolog.Ctx(ctx).Info().
		Int("fixed", c.counts.Fixed).
		Int("unchanged", c.counts.Unchanged).
		Int("not_found", c.counts.NotFound).
		Msg("all files processed")
}

// Counts returns a snapshot of the tallies so far
func (c *Console) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}
