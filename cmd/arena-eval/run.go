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

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/utils/cpuset"

	"github.com/Atsuyo64/ai-tournament/pkg/cgroups"
	"github.com/Atsuyo64/ai-tournament/pkg/cpuallocator"
	"github.com/Atsuyo64/ai-tournament/pkg/evaluator"
	"github.com/Atsuyo64/ai-tournament/pkg/game/tictactoe"
	logger "github.com/Atsuyo64/ai-tournament/pkg/log"
	"github.com/Atsuyo64/ai-tournament/pkg/loader"
	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy/roundrobin"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy/singleplayer"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy/swiss"
)

var log logger.Logger = logger.NewLogger("arena-eval")

// exitCode carries the process exit status out of runCmd's RunE (§6 Exit
// codes), since cobra itself only distinguishes "error" from "no error".
var exitCode int

var runCmd = &cobra.Command{
	Use:   "run <agents-dir>",
	Short: "Run a tournament over the agents discovered under agents-dir",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.Bool("allow-uncontained", false, "proceed with time-only enforcement if cgroups v2 is unavailable")
	flags.Bool("verbose", false, "emit match-level progress to the log sink")
	flags.Bool("compile-agents", false, "interpret agent directories as source crates and compile them")
	flags.Bool("test-all-configs", false, "expand each agent into one synthetic agent per named config")
	flags.String("log-dir", "", "directory to record per-match agent stdio and compile diagnostics")
	flags.Bool("debug-stderr", false, "pipe agent stderr to arena-eval's own stderr instead of log-dir")
	flags.String("game", "tictactoe", "game to play (built in: tictactoe)")
	flags.String("strategy", "swiss", "tournament strategy: swiss, roundrobin, or singleplayer")
	flags.Int("rounds", 5, "number of rounds (swiss)")
	flags.Int("repetitions", 1, "repetitions per pairing/tuple (roundrobin, singleplayer)")
	flags.Int64("ram-per-agent", 0, "memory cap per agent in bytes, 0 = unlimited")
	flags.Int("cores-per-agent", 1, "CPU cores pinned to each agent")
	flags.Duration("action-timeout", 5*time.Second, "per-action response deadline, 0 = unlimited")
	flags.Duration("total-budget", 0, "cumulative per-match think-time budget, 0 = unlimited")
	flags.Int("agents-per-match", 2, "agents participating in each match, used to size the worker pool")
	flags.String("metrics-addr", "", "if set, serve Prometheus metrics on this address for the run's duration")

	for _, name := range []string{
		"allow-uncontained", "verbose", "compile-agents", "test-all-configs",
		"log-dir", "debug-stderr", "game", "strategy", "rounds", "repetitions",
		"ram-per-agent", "cores-per-agent", "action-timeout", "total-budget",
		"agents-per-match", "metrics-addr",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// runRun implements the evaluator.Evaluator wiring described by SPEC_FULL.md's
// Configuration & CLI section: agents are discovered once up front so the
// chosen Strategy can be built over the real roster, then handed to the
// Evaluator through a Loader that simply replays the discovery already done
// (the Evaluator's own Load step must not recompile agents a second time).
func runRun(cmd *cobra.Command, args []string) error {
	agentsDir := args[0]

	if viper.GetBool("verbose") {
		logger.SetLevel(logger.LevelInfo)
	}

	ld := loader.New(
		loader.WithCompileAgents(viper.GetBool("compile-agents")),
		loader.WithTestAllConfigs(viper.GetBool("test-all-configs")),
		loader.WithCompileDiagnosticsWriter(compileDiagnosticsPath()),
	)

	agents, loadErr := ld.Load(agentsDir)
	if loadErr != nil {
		log.Warn("loader reported errors: %v", loadErr)
	}
	if len(agents) == 0 {
		exitCode = 1
		return fmt.Errorf("arena-eval: no agents discovered under %q", agentsDir)
	}

	strat, err := buildStrategy(agents)
	if err != nil {
		exitCode = 1
		return err
	}

	g, err := buildGame(viper.GetString("game"))
	if err != nil {
		exitCode = 1
		return err
	}

	constraints := matchrun.NewConstraints(
		matchrun.WithRAMPerAgent(viper.GetInt64("ram-per-agent")),
		matchrun.WithCoresPerAgent(viper.GetInt("cores-per-agent")),
		matchrun.WithActionTimeout(viper.GetDuration("action-timeout")),
		matchrun.WithTotalBudget(viper.GetDuration("total-budget")),
		matchrun.WithAllowUncontained(viper.GetBool("allow-uncontained")),
	)

	cgroupMgr, err := cgroups.NewManager()
	if err != nil {
		if !constraints.AllowUncontained {
			exitCode = 2
			return fmt.Errorf("arena-eval: resource groups unavailable and allow-uncontained is false: %w", err)
		}
		log.Warn("resource groups unavailable, degrading to time-only enforcement: %v", err)
		cgroupMgr = nil
	}

	total := cpuallocator.NumCPU()
	ids := make([]int, total)
	for i := range ids {
		ids[i] = i
	}
	cpuAlloc := cpuallocator.NewAllocator(cpuset.New(ids...))

	metrics, stopMetrics := maybeStartMetrics(viper.GetString("metrics-addr"))
	defer stopMetrics()

	ev := evaluator.New(
		evaluator.WithLoader(&replayLoader{agents: agents, err: loadErr}),
		evaluator.WithStrategy(strat),
		evaluator.WithGame(g),
		evaluator.WithConstraints(constraints),
		evaluator.WithResourceManager(cgroupMgr),
		evaluator.WithCPUAllocator(cpuAlloc),
		evaluator.WithMetrics(metrics),
		evaluator.WithAgentsPerMatch(viper.GetInt("agents-per-match")),
		evaluator.WithStdio(viper.GetString("log-dir"), viper.GetBool("debug-stderr")),
	)

	result, err := ev.Run(context.Background(), agentsDir)
	if err != nil {
		exitCode = 2
		return fmt.Errorf("arena-eval: run failed: %w", err)
	}

	printScores(result.Scores)
	exitCode = 0
	return nil
}

// replayLoader satisfies evaluator.Loader by handing back a roster already
// discovered by the CLI, so the Evaluator's own Load step (needed to feed
// the agent count to its Metrics) does not recompile agents a
// second time.
type replayLoader struct {
	agents []matchrun.AgentDescriptor
	err    error
}

func (r *replayLoader) Load(dir string) ([]matchrun.AgentDescriptor, error) {
	return r.agents, r.err
}

// buildStrategy constructs the configured strategy.Strategy over roster.
// "strategy" here is an orchestration-level choice (§7 StrategyError): an
// unknown name is a fatal configuration error.
func buildStrategy(roster []matchrun.AgentDescriptor) (strategy.Strategy, error) {
	switch viper.GetString("strategy") {
	case "swiss":
		return swiss.New(roster, swiss.WithRounds(viper.GetInt("rounds"))), nil
	case "roundrobin":
		return roundrobin.New(roster, 2, roundrobin.WithRepetitions(viper.GetInt("repetitions"))), nil
	case "singleplayer":
		tuples := make([][]matchrun.AgentDescriptor, len(roster))
		for i, a := range roster {
			tuples[i] = []matchrun.AgentDescriptor{a}
		}
		return singleplayer.New(tuples, singleplayer.WithRepetitions(viper.GetInt("repetitions"))), nil
	default:
		return nil, fmt.Errorf("arena-eval: unknown strategy %q", viper.GetString("strategy"))
	}
}

// buildGame resolves the --game flag to a matchrun.Game. tictactoe is the
// only built-in choice; external games plug in by implementing
// matchrun.Game the same way.
func buildGame(name string) (matchrun.Game, error) {
	switch name {
	case "tictactoe":
		return tictactoe.New(), nil
	default:
		return nil, fmt.Errorf("arena-eval: unknown game %q", name)
	}
}

// compileDiagnosticsPath returns the compile.txt path under log-dir, or ""
// if log-dir is unset (disabling diagnostics aggregation).
func compileDiagnosticsPath() string {
	dir := viper.GetString("log-dir")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "compile.txt")
}

// maybeStartMetrics starts a Prometheus metrics HTTP server on addr if set,
// returning an evaluator.Metrics sink and a func to stop serving. An empty
// addr disables instrumentation entirely (evaluator.WithMetrics(nil)).
func maybeStartMetrics(addr string) (evaluator.Metrics, func()) {
	if addr == "" {
		return nil, func() {}
	}

	m := evaluator.NewPrometheusMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped: %v", err)
		}
	}()

	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// printScores prints the final per-agent score map sorted by descending
// score (§4.5 step 4's result, surfaced to the operator).
func printScores(scores map[string]float64) {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return scores[names[i]] > scores[names[j]] })

	for _, name := range names {
		fmt.Printf("%-40s %.3f\n", name, scores[name])
	}
}
