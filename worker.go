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

package ledgersnap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/internal/notification"
	"github.com/ledgersnap/ledgersnap/model"
)

// Worker drains the submission queue. One worker process polls on a fixed
// interval; the in-flight flag guarantees a single tick runs at a time, so
// within one process there is never concurrent processing. Horizontal scale
// comes from the claim query's SKIP LOCKED, not from threads.
type Worker struct {
	ledgersnap *LedgerSnap
	conf       config.QueueConfig
	inFlight   atomic.Bool
	stop       chan struct{}
	done       chan struct{}
}

func NewWorker(l *LedgerSnap) (*Worker, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &Worker{
		ledgersnap: l,
		conf:       configuration.Queue,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start runs the polling loop until Stop is called or ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.conf.PollInterval())
		defer ticker.Stop()

		logrus.WithField("poll_interval", w.conf.PollInterval()).Info("submission worker started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.Tick(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the current tick to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Tick claims and processes up to one batch of due submissions. If the
// previous tick is still running this one is skipped; a slow job must never
// stack ticks behind it.
func (w *Worker) Tick(ctx context.Context) {
	if !w.inFlight.CompareAndSwap(false, true) {
		logrus.Debug("previous tick still in flight, skipping")
		return
	}
	defer w.inFlight.Store(false)

	for i := 0; i < w.conf.BatchSize; i++ {
		record, err := w.ledgersnap.datasource.ClaimNextSubmission(ctx)
		if err != nil {
			logrus.WithError(err).Error("failed to claim submission")
			return
		}
		if record == nil {
			return
		}
		w.processSubmission(ctx, record)
	}
}

func (w *Worker) processSubmission(ctx context.Context, record *model.QueueRecord) {
	log := logrus.WithFields(logrus.Fields{
		"queue_id": record.QueueID,
		"type":     record.Type,
		"attempt":  record.Attempts,
	})

	jobCtx, cancel := context.WithTimeout(ctx, w.conf.JobTimeout())
	defer cancel()

	result, err := w.execute(jobCtx, record)
	if err != nil {
		w.recordFailure(ctx, record, err, log)
		return
	}

	if err := w.ledgersnap.datasource.MarkSubmissionSuccess(ctx, record.QueueID, result); err != nil {
		log.WithError(err).Error("failed to mark submission completed")
		return
	}
	if err := w.ledgersnap.datasource.UpdateIdempotencyRecord(ctx, record.IdempotencyKey, model.StatusCompleted, result); err != nil {
		log.WithError(err).Error("failed to finalize idempotency record")
		return
	}
	log.Info("submission completed")
}

// recordFailure schedules a retry or parks the submission terminally once the
// attempt budget is spent. The idempotency ledger is only finalized on the
// terminal path: while retries remain the key must keep answering "pending".
func (w *Worker) recordFailure(ctx context.Context, record *model.QueueRecord, procErr error, log *logrus.Entry) {
	if record.Attempts >= w.conf.MaxAttempts {
		log.WithError(procErr).Error("submission failed terminally")

		if err := w.ledgersnap.datasource.MarkSubmissionFailure(ctx, record.QueueID, model.StatusFailed, procErr.Error(), time.Now()); err != nil {
			log.WithError(err).Error("failed to park submission")
			return
		}
		failure, _ := json.Marshal(map[string]string{"error": procErr.Error()})
		if err := w.ledgersnap.datasource.UpdateIdempotencyRecord(ctx, record.IdempotencyKey, model.StatusFailed, failure); err != nil {
			log.WithError(err).Error("failed to finalize idempotency record")
		}
		notification.NotifyError(errors.Wrapf(procErr, "submission %s failed after %d attempts", record.QueueID, record.Attempts))
		return
	}

	delay := w.backoffFor(record.Attempts)
	nextAttempt := time.Now().Add(delay)
	log.WithError(procErr).WithField("retry_in", delay).Warn("submission failed, scheduling retry")

	if err := w.ledgersnap.datasource.MarkSubmissionFailure(ctx, record.QueueID, model.StatusPending, procErr.Error(), nextAttempt); err != nil {
		log.WithError(err).Error("failed to schedule retry")
	}
}

// backoffFor computes the delay before the next attempt: linear in the number
// of attempts already made, capped at the configured ceiling.
func (w *Worker) backoffFor(attempts int) time.Duration {
	delay := time.Duration(attempts) * w.conf.BackoffUnit()
	if delay > w.conf.BackoffCeiling() {
		delay = w.conf.BackoffCeiling()
	}
	return delay
}

func (w *Worker) execute(ctx context.Context, record *model.QueueRecord) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "ProcessSubmission")
	defer span.End()

	tenant, err := w.ledgersnap.datasource.GetTenantByID(ctx, record.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.Provisioned() {
		return nil, errors.Errorf("tenant %s has no provisioned ledger assets", tenant.TenantID)
	}
	user, err := w.ledgersnap.datasource.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	switch record.Type {
	case model.TypeReceipt:
		return w.processReceipt(ctx, tenant, user, record)
	case model.TypeStatement:
		return w.processStatement(ctx, tenant, record)
	default:
		return nil, errors.Errorf("unknown submission type %q", record.Type)
	}
}

// processReceipt runs the receipt pipeline: extract (best effort), allocate a
// receipt id, store the image, append the ledger row. Steps after the counter
// INCR are retried with the same payload but a fresh id, so a retry can leave
// an unused id behind; it can not produce a second ledger row for the same
// idempotency key because terminal success is recorded exactly once.
func (w *Worker) processReceipt(ctx context.Context, tenant *model.Tenant, user *model.User, record *model.QueueRecord) ([]byte, error) {
	var payload model.ReceiptPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid receipt payload")
	}
	if payload.ImageBase64 == "" {
		return nil, errors.New("receipt payload has no image")
	}

	image, err := base64.StdEncoding.DecodeString(payload.ImageBase64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid receipt image encoding")
	}

	// Offline captures arrive without extracted fields; fill them in here if
	// the extraction service is available. Failure to extract never fails the
	// submission.
	if payload.Merchant == "" && w.ledgersnap.extractor != nil {
		fields, err := w.ledgersnap.extractor.ExtractReceipt(ctx, payload.ImageBase64)
		if err != nil {
			logrus.WithError(err).WithField("queue_id", record.QueueID).Warn("receipt extraction failed, continuing without")
		} else {
			payload.Merchant = fields.Merchant
			if payload.Total == nil {
				payload.Total = fields.Total
			}
			if payload.Date == "" {
				payload.Date = fields.Date
			}
		}
	}

	monthKey := monthKeyFor(payload.Date, record.CreatedAt)

	sequence, err := w.ledgersnap.counters.NextReceiptSequence(ctx, tenant.BusinessCode, user.StaffCode, monthKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate receipt sequence")
	}
	receiptID := FormatReceiptID(tenant.BusinessCode, user.StaffCode, monthKey, sequence)

	fileID, err := w.ledgersnap.files.Upload(ctx, tenant.StorageFolder, image, "image/jpeg", fmt.Sprintf("receipts/%s.jpg", receiptID))
	if err != nil {
		return nil, err
	}

	tab := monthKey + "_Receipts_MASTER"
	if err := w.ledgersnap.sheets.EnsureTabs(ctx, tenant.SpreadsheetID, []string{tab}); err != nil {
		return nil, err
	}

	row := []string{receiptID, payload.Merchant, decimalString(payload.Total), payload.Date, fileID, "SUBMITTED", record.IdempotencyKey}
	if err := w.ledgersnap.sheets.AppendRows(ctx, tenant.SpreadsheetID, tab, [][]string{row}); err != nil {
		return nil, err
	}

	return json.Marshal(model.ReceiptResult{ReceiptID: receiptID, FileID: fileID})
}

// processStatement runs the statement pipeline: store the source file when
// present, then append every transaction to its month's tab.
func (w *Worker) processStatement(ctx context.Context, tenant *model.Tenant, record *model.QueueRecord) ([]byte, error) {
	var payload model.StatementPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid statement payload")
	}
	if len(payload.Transactions) == 0 {
		return nil, errors.New("statement payload has no transactions")
	}

	var fileID string
	if payload.FileBase64 != "" {
		file, err := base64.StdEncoding.DecodeString(payload.FileBase64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid statement file encoding")
		}
		name := fmt.Sprintf("statements/%s%s", record.QueueID, extensionForMime(payload.MimeType))
		fileID, err = w.ledgersnap.files.Upload(ctx, tenant.StorageFolder, file, payload.MimeType, name)
		if err != nil {
			return nil, err
		}
	}

	byMonth := map[string][][]string{}
	for _, txn := range payload.Transactions {
		date := txn.TxnDate
		if date == "" {
			date = payload.StatementDate
		}
		monthKey := monthKeyFor(date, record.CreatedAt)
		row := []string{date, txn.Description, decimalString(txn.Debit), decimalString(txn.Credit), decimalString(txn.Balance), txn.CategoryGuess, fileID, record.IdempotencyKey}
		byMonth[monthKey] = append(byMonth[monthKey], row)
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	rowsAppended := 0
	for _, month := range months {
		tab := month + "_Transactions_MASTER"
		if err := w.ledgersnap.sheets.EnsureTabs(ctx, tenant.SpreadsheetID, []string{tab}); err != nil {
			return nil, err
		}
		if err := w.ledgersnap.sheets.AppendRows(ctx, tenant.SpreadsheetID, tab, byMonth[month]); err != nil {
			return nil, err
		}
		rowsAppended += len(byMonth[month])
	}

	return json.Marshal(model.StatementResult{FileID: fileID, RowsAppended: rowsAppended})
}

// monthKeyFor resolves the YYYY-MM ledger month for a date string, falling
// back to the submission time when the date is missing or unparseable.
func monthKeyFor(date string, fallback time.Time) string {
	if len(date) >= 10 {
		if t, err := time.Parse("2006-01-02", date[:10]); err == nil {
			return t.Format("2006-01")
		}
	}
	if len(date) >= 7 {
		if t, err := time.Parse("2006-01", date[:7]); err == nil {
			return t.Format("2006-01")
		}
	}
	return fallback.Format("2006-01")
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "text/csv":
		return ".csv"
	default:
		return ".bin"
	}
}
