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

// Package target turns configured path patterns into the ordered list of
// files a batch run visits.
package target

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Normalize converts Windows style separators to the host separator.
func Normalize(p string) string {
	return filepath.FromSlash(strings.ReplaceAll(p, `\`, "/"))
}

// IsGlob reports whether p contains doublestar meta characters.
// Square brackets are treated literally since route folders use them ([orgId]).
func IsGlob(p string) bool {
	return strings.ContainsAny(p, "*?{")
}

// 🎯 Resolve expands patterns against root, in input order.
//
// Literal entries are passed through untouched (even when missing) so the
// caller can report them. Glob entries are expanded with doublestar, sorted,
// and entries already seen are dropped.
func Resolve(ctx context.Context, root string, patterns []string) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, pattern := range patterns {
		if !IsGlob(pattern) {
			add(pattern)
			continue
		}

		slashed := escapeBrackets(strings.ReplaceAll(pattern, `\`, "/"))
		if !doublestar.ValidatePattern(slashed) {
			return nil, errors.Errorf("invalid target pattern %q", pattern)
		}

		matches, err := doublestar.Glob(os.DirFS(root), slashed, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Errorf("expanding target pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)

		logger.Debug().Str("pattern", pattern).Int("matches", len(matches)).Msg("expanded target pattern")

		for _, m := range matches {
			add(filepath.FromSlash(m))
		}
	}

	return out, nil
}

func escapeBrackets(p string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(p)
}

// Join places a target under root unless it is already absolute.
func Join(root, p string) string {
	p = Normalize(p)
	if root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
