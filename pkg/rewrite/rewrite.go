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

package rewrite

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 📝 Result describes what a rewrite did to one buffer
type Result struct {
	OriginalContent  []byte
	ModifiedContent  []byte
	ReplacementCount int
	RuleCounts       map[string]int // matches per rule name, zero entries included
	WasModified      bool
}

// 🛠️ Rewriter applies an ordered rule set to file content
type Rewriter struct {
	rules []compiledRule
}

// 🏭 New validates and compiles rules into a Rewriter
func New(rules []Rule) (*Rewriter, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, errors.Errorf("validating rules: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		compiled = append(compiled, compiledRule{Rule: rule, re: regexp.MustCompile(rule.Pattern)})
	}
	return &Rewriter{rules: compiled}, nil
}

// Rules returns the rules in application order
func (r *Rewriter) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, c := range r.rules {
		out[i] = c.Rule
	}
	return out
}

// 🔄 Rewrite reads content fully and runs every applicable rule over it in order.
// Each rule sees the output of the previous one. A rule with no match leaves
// the buffer untouched.
func (r *Rewriter) Rewrite(ctx context.Context, path string, content io.Reader) (*Result, error) {
	original, err := io.ReadAll(content)
	if err != nil {
		return nil, errors.Errorf("reading content: %w", err)
	}

	logger := zerolog.Ctx(ctx)

	result := &Result{
		OriginalContent: original,
		ModifiedContent: original,
		RuleCounts:      make(map[string]int, len(r.rules)),
	}

	current := original
	for _, rule := range r.rules {
		if !rule.applies(path) {
			logger.Trace().Str("file", path).Str("rule", rule.Name).Msg("rule skipped by files glob")
			continue
		}

		found := rule.re.FindAllSubmatchIndex(current, -1)
		matches := len(found)
		result.RuleCounts[rule.Name] = matches
		if matches == 0 {
			continue
		}

		current = rule.expandAll(current, found)
		result.ReplacementCount += matches

		logger.Debug().Str("file", path).Str("rule", rule.Name).Int("matches", matches).Msg("rule applied")
	}

	result.ModifiedContent = current
	result.WasModified = string(current) != string(original)
	return result, nil
}

// expandAll replaces every match in src. Line breaks in the expansion follow
// the line the match sits on, so a CRLF file stays CRLF.
func (c compiledRule) expandAll(src []byte, found [][]int) []byte {
	out := make([]byte, 0, len(src))
	last := 0
	for _, m := range found {
		out = append(out, src[last:m[0]]...)
		expanded := c.re.Expand(nil, []byte(c.Replace), src, m)
		if lineEndsCRLF(src, m[1]) {
			expanded = toCRLF(expanded)
		}
		out = append(out, expanded...)
		last = m[1]
	}
	return append(out, src[last:]...)
}

// lineEndsCRLF reports whether the first line break at or after from is "\r\n".
func lineEndsCRLF(src []byte, from int) bool {
	i := bytes.IndexByte(src[from:], '\n')
	if i < 0 {
		return false
	}
	nl := from + i
	return nl > 0 && src[nl-1] == '\r'
}

func toCRLF(b []byte) []byte {
	lf := bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(lf, []byte("\n"), []byte("\r\n"))
}

// RewriteString is a convenience wrapper for in-memory content
func (r *Rewriter) RewriteString(ctx context.Context, content string) (string, error) {
	res, err := r.Rewrite(ctx, "", strings.NewReader(content))
	if err != nil {
		return "", err
	}
	return string(res.ModifiedContent), nil
}
