/*
Copyright 2024 LedgerSnap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ledgersnap/ledgersnap"
	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/database"
	"github.com/ledgersnap/ledgersnap/internal/notification"
)

// CLI wraps the root Cobra command for the application.
type CLI struct {
	cmd *cobra.Command
}

// snapInstance holds the runtime instance and configuration shared by the
// server-side commands. Agent commands leave snap nil: they run on capture
// devices with no database or Redis reachable.
type snapInstance struct {
	snap *ledgersnap.LedgerSnap
	cnf  *config.Configuration
}

// recoverPanic logs any panic during command execution and exits non-zero.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and, for commands that need it, initializes
// the LedgerSnap instance. Agent and migrate subcommands only get the
// configuration; they manage their own connections.
func preRun(app *snapInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		if isStandaloneCommand(cmd) {
			return nil
		}

		newSnap, err := setupLedgerSnap(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.snap = newSnap

		return nil
	}
}

// isStandaloneCommand reports whether cmd manages its own connections: agent
// commands run offline, and migrations connect before the schema exists.
func isStandaloneCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "agent", "migrate":
			return true
		}
	}
	return false
}

// setupLedgerSnap creates a LedgerSnap instance wired to the configured data
// source and external collaborators.
func setupLedgerSnap(cfg *config.Configuration) (*ledgersnap.LedgerSnap, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSnap, err := ledgersnap.NewLedgerSnap(db)
	if err != nil {
		return nil, fmt.Errorf("error creating ledgersnap: %v", err)
	}
	return newSnap, nil
}

// NewCLI builds the command-line interface: server, worker, migration and
// agent commands under a single root.
func NewCLI() *CLI {
	var configFile string
	b := &snapInstance{}

	var rootCmd = &cobra.Command{
		Use:   "ledgersnap",
		Short: "Offline-resilient receipt and statement ledger",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./ledgersnap.json", "Configuration file for ledgersnap")

	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(agentCommands(b))

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
