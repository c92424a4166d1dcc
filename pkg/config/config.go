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

// Package config holds the list of route files to rewrite and the rules
// applied to them.
package config

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/routefix/pkg/rewrite"
	"gitlab.com/tozd/go/errors"
)

// 📚 Config is a complete rewrite job
type Config struct {
	Root    string         `json:"root,omitempty" yaml:"root,omitempty"`       // Directory targets are relative to
	Targets []string       `json:"targets,omitempty" yaml:"targets,omitempty"` // Paths or doublestar globs, in processing order
	Rules   []rewrite.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`     // Applied to every target in order

	location string
}

// DefaultTargets are the route handlers that still take the old
// (request, auth, context) signature.
var DefaultTargets = []string{
	`src\app\api\v1\organizations\[orgId]\analytics\route.ts`,
	`src\app\api\v1\organizations\[orgId]\assign-lab\route.ts`,
	`src\app\api\v1\organizations\[orgId]\members\route.ts`,
	`src\app\api\v1\organizations\[orgId]\members\[userId]\route.ts`,
	`src\app\api\v1\organizations\[orgId]\route.ts`,
	`src\app\api\v1\users\[userId]\analytics\route.ts`,
	`src\app\api\v1\users\[userId]\labs\route.ts`,
	`src\app\api\v1\users\[userId]\orders\route.ts`,
	`src\app\api\v1\users\[userId]\route.ts`,
}

// 🏭 Default returns the built-in job
func Default() *Config {
	targets := make([]string, len(DefaultTargets))
	copy(targets, DefaultTargets)
	return &Config{
		Root:    ".",
		Targets: targets,
		Rules:   rewrite.DefaultRules(),
	}
}

// Location is the file the config was loaded from, empty for the default
func (cfg *Config) Location() string {
	return cfg.location
}

// applyDefaults fills sections a config file left out
func (cfg *Config) applyDefaults() {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = Default().Targets
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = rewrite.DefaultRules()
	}
}

// 🔍 Validate checks the config is runnable
func Validate(ctx context.Context, cfg *Config) error {
	zerolog.Ctx(ctx).Debug().Str("location", cfg.location).Int("targets", len(cfg.Targets)).Int("rules", len(cfg.Rules)).Msg("validating config")

	for i, t := range cfg.Targets {
		if t == "" {
			return errors.Errorf("target %d: path is empty", i)
		}
	}

	if err := rewrite.ValidateRules(cfg.Rules); err != nil {
		return errors.Errorf("validating rules: %w", err)
	}

	return nil
}
