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
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ledgersnap/ledgersnap"
	"github.com/ledgersnap/ledgersnap/config"
)

// workerCommands defines the "workers" command that runs the submission queue
// worker: it polls the database for pending submissions and processes them
// with the configured backoff schedule. Multiple worker processes may run
// against the same database; the claim query keeps them from colliding.
func workerCommands(b *snapInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start ledgersnap workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			phClient, shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			worker, err := ledgersnap.NewWorker(b.snap)
			if err != nil {
				log.Fatal(err)
			}

			worker.Start(ctx)
			log.Printf("Worker polling every %s (batch %d, max %d attempts)",
				conf.Queue.PollInterval(), conf.Queue.BatchSize, conf.Queue.MaxAttempts)

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			<-sigs

			log.Println("Shutting down worker")
			worker.Stop()
		},
	}

	return cmd
}
