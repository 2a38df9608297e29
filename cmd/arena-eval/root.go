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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "EVAL"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "arena-eval",
	Short:         "Run autonomous agents against each other under resource isolation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "run-configuration YAML file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig wires viper's three configuration layers (§6 Configuration
// knobs): cobra flags (bound per-command in runCmd's init), an optional
// YAML run-configuration file, and EVAL_-prefixed environment variables,
// which take precedence per §6.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "arena-eval: failed to read config file %q: %v\n", cfgFile, err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the command tree and returns the process exit code (§6
// Exit codes): 0 on any completed run, non-zero on orchestration-level
// failure.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode != 0 {
			return exitCode
		}
		return 1
	}
	return exitCode
}
