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
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// 🔄 Rule is a single pattern/template replacement applied to file content
type Rule struct {
	Name    string `json:"name" yaml:"name"`                       // Rule name, used in logs
	Pattern string `json:"pattern" yaml:"pattern"`                 // RE2 pattern to find
	Replace string `json:"replace" yaml:"replace"`                 // Expansion template, ${1} for captures
	Files   string `json:"files,omitempty" yaml:"files,omitempty"` // Optional doublestar glob limiting which paths the rule touches
}

const (
	DropContextParam = "drop-context-param"
	ParamsFromURL    = "params-from-url"
)

// paramsFromURLTemplate keeps the 8 space indent of the handler body it lands in.
const paramsFromURLTemplate = `// Extract ${1} from URL path
        const url = new URL(request.url);
        const pathParts = url.pathname.split('/');
        const ${1} = pathParts[pathParts.length - 1];`

// 📦 DefaultRules returns the built-in route handler rules, in application order
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    DropContextParam,
			Pattern: `async \(request: NextRequest, auth, context: any\) =>`,
			Replace: `async (request: NextRequest, auth) =>`,
		},
		{
			Name:    ParamsFromURL,
			Pattern: `const \{ (\w+) \} = context\.params;`,
			Replace: paramsFromURLTemplate,
		},
	}
}

// 🔍 ValidateRules checks that every rule is usable
func ValidateRules(rules []Rule) error {
	for i, rule := range rules {
		if rule.Name == "" {
			return errors.Errorf("rule %d: name is required", i)
		}
		if rule.Pattern == "" {
			return errors.Errorf("rule %d (%s): pattern is required", i, rule.Name)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return errors.Errorf("rule %d (%s): compiling pattern: %w", i, rule.Name, err)
		}
		if rule.Files != "" && !doublestar.ValidatePattern(rule.Files) {
			return errors.Errorf("rule %d (%s): invalid files glob %q", i, rule.Name, rule.Files)
		}
	}
	return nil
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// applies reports whether the rule should run against path.
func (c compiledRule) applies(path string) bool {
	if c.Files == "" {
		return true
	}
	return doublestar.MatchUnvalidated(c.Files, normalizeSlashes(path))
}

func normalizeSlashes(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}
