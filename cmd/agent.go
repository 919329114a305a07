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

/*
Package main also carries the agent commands: the client-resident side of the
pipeline. Captures land in a durable SQLite outbox immediately and without any
network; sync drains the outbox to the server whenever connectivity allows.
*/

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ledgersnap/ledgersnap/model"
	"github.com/ledgersnap/ledgersnap/outbox"
)

// openOutbox opens the configured durable outbox. The caller owns the handle.
func openOutbox(b *snapInstance) (*outbox.SQLiteOutbox, error) {
	return outbox.NewSQLiteOutbox(b.cnf.Agent.OutboxPath)
}

// queueCapture stores a capture in the outbox and reports its queue position.
// This never touches the network: a capture is safe the moment this returns.
func queueCapture(b *snapInstance, itemType string, payload json.RawMessage) error {
	ob, err := openOutbox(b)
	if err != nil {
		return err
	}
	defer func() { _ = ob.Close() }()

	item := outbox.NewItem(itemType, payload)
	if err := ob.Add(context.Background(), item); err != nil {
		return err
	}

	fmt.Printf("Queued %s %s (idempotency key %s)\n", itemType, item.ID, item.IdempotencyKey)
	return nil
}

func captureReceiptCommand(b *snapInstance) *cobra.Command {
	var imagePath, merchant, total, date string

	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "queue a receipt photo for submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("error reading image: %v", err)
			}

			payload := model.ReceiptPayload{
				ImageBase64: base64.StdEncoding.EncodeToString(image),
				Merchant:    merchant,
				Date:        date,
			}
			if total != "" {
				amount, err := decimal.NewFromString(total)
				if err != nil {
					return fmt.Errorf("invalid total: %v", err)
				}
				payload.Total = &amount
			}

			raw, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			return queueCapture(b, outbox.ItemReceipt, raw)
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path to the receipt photo")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant name, if already known")
	cmd.Flags().StringVar(&total, "total", "", "receipt total, if already known")
	cmd.Flags().StringVar(&date, "date", "", "receipt date (YYYY-MM-DD), if already known")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

// readStatementPayload loads and validates a statement JSON file from disk.
func readStatementPayload(path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading statement file: %v", err)
	}

	var payload model.StatementPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid statement file: %v", err)
	}
	if len(payload.Transactions) == 0 {
		return nil, fmt.Errorf("statement file has no transactions")
	}
	return raw, nil
}

func captureStatementCommand(b *snapInstance) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "statement",
		Short: "queue an extracted bank statement for submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readStatementPayload(filePath)
			if err != nil {
				return err
			}
			return queueCapture(b, outbox.ItemStatement, raw)
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "path to the statement JSON (transactions and optional source file)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func captureCSVCommand(b *snapInstance) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "queue a CSV export for submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readStatementPayload(filePath)
			if err != nil {
				return err
			}
			// CSV exports ride the statement lane on the server side; the
			// outbox keeps the distinction for local bookkeeping.
			return queueCapture(b, outbox.ItemCSVExport, raw)
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "path to the CSV export JSON")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func captureCommands(b *snapInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "store a capture in the durable outbox",
	}

	cmd.AddCommand(captureReceiptCommand(b))
	cmd.AddCommand(captureStatementCommand(b))
	cmd.AddCommand(captureCSVCommand(b))

	return cmd
}

func syncCommand(b *snapInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "drain the outbox to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ob, err := openOutbox(b)
			if err != nil {
				return err
			}
			defer func() { _ = ob.Close() }()

			driver := outbox.NewSyncDriver(ob, outbox.NewClient(b.cnf.Agent), b.cnf.Agent)
			report, err := driver.Drain(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Sync finished: %d uploaded, %d failed, %d skipped\n",
				report.Uploaded, report.Failed, report.Skipped)
			return nil
		},
	}

	return cmd
}

func outboxCommand(b *snapInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "list captures waiting in the outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			ob, err := openOutbox(b)
			if err != nil {
				return err
			}
			defer func() { _ = ob.Close() }()

			items, err := ob.List(context.Background())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("Outbox is empty")
				return nil
			}

			for _, item := range items {
				line := fmt.Sprintf("%s  %-10s %-9s attempts=%d  captured %s",
					item.ID, item.Type, item.Status, item.AttemptCount,
					item.CreatedAt.Format("2006-01-02 15:04:05"))
				if item.LastError != "" {
					line += "  last error: " + item.LastError
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	return cmd
}

func submissionsCommand(b *snapInstance) *cobra.Command {
	var live bool
	var limit int

	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "show submission history (cached by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ob, err := openOutbox(b)
			if err != nil {
				return err
			}
			defer func() { _ = ob.Close() }()

			ctx := context.Background()
			var raw []byte
			if live {
				client := outbox.NewClient(b.cnf.Agent)
				raw, err = client.Submissions(ctx, limit)
				if err != nil {
					return fmt.Errorf("error fetching submissions: %v", err)
				}
				if cacheErr := ob.CacheSubmissions(ctx, raw); cacheErr != nil {
					log.Printf("Error caching submissions: %v", cacheErr)
				}
			} else {
				raw, err = ob.CachedSubmissions(ctx)
				if err != nil {
					return err
				}
				if raw == nil {
					fmt.Println("No cached history yet. Run with --live while online.")
					return nil
				}
			}

			var pretty interface{}
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Println(string(raw))
				return nil
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "fetch fresh history from the server")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of submissions to fetch with --live")

	return cmd
}

// agentCommands groups the client-resident commands. They never require the
// server database; everything except sync and submissions --live works with
// no network at all.
func agentCommands(b *snapInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "client-side capture and sync",
	}

	cmd.AddCommand(captureCommands(b))
	cmd.AddCommand(syncCommand(b))
	cmd.AddCommand(outboxCommand(b))
	cmd.AddCommand(submissionsCommand(b))

	return cmd
}
