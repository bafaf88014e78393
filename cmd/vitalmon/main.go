/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


// Command vitalmon runs the bedside monitor core and its tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mfreeman451/vitalmon/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	config string
	env    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:          "vitalmon",
		Short:        "Bedside vital-signs monitor core",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.config, "config", "", "Path to JSON config file")
	rootCmd.PersistentFlags().StringVar(&flags.env, "env", ".env", "Path to .env overrides")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(sensorCmd(flags))
	rootCmd.AddCommand(usersCmd(flags))
	rootCmd.AddCommand(auditCmd(flags))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func (f *rootFlags) load() (*config.MonitorConfig, error) {
	cfg, err := config.Load(f.config, f.env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "vitalmon", version)
		},
	}
}
