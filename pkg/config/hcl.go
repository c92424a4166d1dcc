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

package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/walteh/routefix/pkg/rewrite"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// hclConfig is the HCL schema. Rules are labelled blocks:
//
//	rule "drop-context-param" {
//	  pattern = "..."
//	  replace = "..."
//	}
//
// A literal "${" has to be written "$${" inside HCL strings.
type hclConfig struct {
	Root    string    `hcl:"root,optional"`
	Targets []string  `hcl:"targets,optional"`
	Rules   []hclRule `hcl:"rule,block"`
}

type hclRule struct {
	Name    string `hcl:"name,label"`
	Pattern string `hcl:"pattern"`
	Replace string `hcl:"replace,optional"`
	Files   string `hcl:"files,optional"`
}

// loadHCL loads a configuration from HCL data
func loadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var hclCfg hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hclCfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	cfg := &Config{
		Root:    hclCfg.Root,
		Targets: hclCfg.Targets,
	}
	for _, r := range hclCfg.Rules {
		cfg.Rules = append(cfg.Rules, rewrite.Rule{
			Name:    r.Name,
			Pattern: r.Pattern,
			Replace: r.Replace,
			Files:   r.Files,
		})
	}

	return cfg, nil
}
