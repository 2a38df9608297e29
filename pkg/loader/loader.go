// Copyright 2024 The ai-tournament Authors.
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

// Package loader implements the default directory-layout agent loader
// (§6): each immediate subdirectory of the agents directory is either a
// precompiled layout (an executable plus config.yaml) or, when
// compile_agents is set, a source-crate layout (a manifest plus
// config.yaml) that gets compiled first.
package loader

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
)

// agentConfig is the parsed contents of an agent's config.yaml (§6 Agent
// configuration file).
type agentConfig struct {
	Eval    string            `yaml:"eval"`
	Configs map[string]string `yaml:"configs"`
}

// Option configures a Loader built by New.
type Option func(*Loader)

// WithCompileAgents treats every agent directory as a source crate that
// must be compiled before use (§6 compile_agents).
func WithCompileAgents(compile bool) Option {
	return func(l *Loader) { l.compileAgents = compile }
}

// WithTestAllConfigs expands every named configuration in an agent's
// config.yaml into its own synthetic agent, named "{agent}/{config}"
// (§6 test_all_configs).
func WithTestAllConfigs(testAll bool) Option {
	return func(l *Loader) { l.testAllConfigs = testAll }
}

// WithCompileDiagnosticsWriter directs compile.txt output to the file at
// path instead of discarding it.
func WithCompileDiagnosticsWriter(path string) Option {
	return func(l *Loader) { l.diagnosticsPath = path }
}

// Loader is the default implementation of pkg/evaluator's Loader
// interface: it walks a directory of agent subdirectories, optionally
// compiles source-crate layouts, and expands each into one or more
// matchrun.AgentDescriptor (one per tested configuration).
type Loader struct {
	compileAgents   bool
	testAllConfigs  bool
	diagnosticsPath string
}

// New builds a Loader configured by opts.
func New(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load discovers every agent beneath dir, compiling source crates when
// compileAgents is set, and returns one AgentDescriptor per agent (or per
// tested configuration, when testAllConfigs is set). Discovery and
// compile failures for individual agents are aggregated into the
// returned error via go-multierror rather than aborting the whole load
// (§7 LoaderError: affected agents are excluded from play, not fatal).
func (l *Loader) Load(dir string) ([]matchrun.AgentDescriptor, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to read agents directory %q: %w", dir, err)
	}

	var descriptors []matchrun.AgentDescriptor
	var errs *multierror.Error
	var diagnostics []string

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		agentDir := filepath.Join(dir, name)

		cfg, err := readAgentConfig(agentDir)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("agent %q: %w", name, err))
			continue
		}

		path, diag, err := l.resolveExecutable(agentDir, name)
		if diag != "" {
			diagnostics = append(diagnostics, diag)
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("agent %q: %w", name, err))
			continue
		}

		for _, d := range l.expand(name, path, cfg) {
			descriptors = append(descriptors, d)
		}
	}

	if l.diagnosticsPath != "" {
		if err := writeDiagnostics(l.diagnosticsPath, diagnostics); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("loader: failed to write compile diagnostics: %w", err))
		}
	}

	if errs != nil {
		return descriptors, errs.ErrorOrNil()
	}
	return descriptors, nil
}

// expand turns one agent's config into one or more descriptors: a single
// descriptor using cfg.Eval's arguments, or (with test_all_configs) one
// descriptor per named configuration, named "{agent}/{config}".
func (l *Loader) expand(name, path string, cfg agentConfig) []matchrun.AgentDescriptor {
	if !l.testAllConfigs {
		return []matchrun.AgentDescriptor{{
			Name: name,
			Path: path,
			Args: splitArgs(cfg.Configs[cfg.Eval]),
		}}
	}

	configNames := make([]string, 0, len(cfg.Configs))
	for cname := range cfg.Configs {
		configNames = append(configNames, cname)
	}
	sort.Strings(configNames)

	out := make([]matchrun.AgentDescriptor, 0, len(configNames))
	for _, cname := range configNames {
		out = append(out, matchrun.AgentDescriptor{
			Name: fmt.Sprintf("%s/%s", name, cname),
			Path: path,
			Args: splitArgs(cfg.Configs[cname]),
		})
	}
	return out
}

// resolveExecutable returns the path to the agent's runnable binary,
// compiling it first if compileAgents is set. diag carries any compile
// output for aggregation into compile.txt, regardless of success.
func (l *Loader) resolveExecutable(agentDir, name string) (path string, diag string, err error) {
	if !l.compileAgents {
		bin := filepath.Join(agentDir, name)
		if _, err := os.Stat(bin); err != nil {
			return "", "", fmt.Errorf("precompiled executable %q not found: %w", bin, err)
		}
		return bin, "", nil
	}

	out, err := exec.Command("go", "build", "-o", filepath.Join(agentDir, name), agentDir).CombinedOutput()
	diag = fmt.Sprintf("=== %s ===\n%s\n", name, out)
	if err != nil {
		return "", diag, fmt.Errorf("compile failed: %w", err)
	}
	return filepath.Join(agentDir, name), diag, nil
}

func readAgentConfig(agentDir string) (agentConfig, error) {
	raw, err := ioutil.ReadFile(filepath.Join(agentDir, "config.yaml"))
	if err != nil {
		return agentConfig{}, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	var cfg agentConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return agentConfig{}, fmt.Errorf("failed to parse config.yaml: %w", err)
	}
	if cfg.Eval == "" {
		return agentConfig{}, fmt.Errorf("config.yaml missing required \"eval\" key")
	}

	return cfg, nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

func writeDiagnostics(path string, diagnostics []string) error {
	return ioutil.WriteFile(path, []byte(strings.Join(diagnostics, "\n")), 0644)
}
