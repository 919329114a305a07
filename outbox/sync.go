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

package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ledgersnap/ledgersnap/config"
)

// SyncDriver drains the outbox to the server. Drains are single-flight: a
// second Drain while one is running returns immediately. Items are uploaded
// sequentially, oldest first, and one item's failure never blocks the rest.
type SyncDriver struct {
	outbox   *SQLiteOutbox
	client   *Client
	conf     config.AgentConfig
	inFlight atomic.Bool
}

func NewSyncDriver(outbox *SQLiteOutbox, client *Client, conf config.AgentConfig) *SyncDriver {
	return &SyncDriver{outbox: outbox, client: client, conf: conf}
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Uploaded int `json:"uploaded"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// ErrDrainInFlight is returned when a drain is already running.
var ErrDrainInFlight = errors.New("a drain is already in flight")

// ErrNoToken is returned when a drain is attempted with no auth token
// configured. Uploading anyway would only burn attempts on 401s.
var ErrNoToken = errors.New("no auth token configured")

// Drain uploads every eligible item: QUEUED, FAILED (they retry on the next
// pass), and UPLOADING items whose last touch is older than the stale-upload
// window, which means a previous drain died mid-item.
func (s *SyncDriver) Drain(ctx context.Context) (*DrainReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrDrainInFlight
	}
	defer s.inFlight.Store(false)

	if s.conf.Token == "" {
		return nil, ErrNoToken
	}

	if err := s.client.Health(ctx); err != nil {
		return nil, err
	}

	items, err := s.outbox.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &DrainReport{}
	for i := range items {
		item := items[i]
		if !s.eligible(&item) {
			report.Skipped++
			continue
		}
		if err := s.uploadItem(ctx, &item); err != nil {
			logrus.WithError(err).WithField("item_id", item.ID).Warn("outbox item upload failed")
			report.Failed++
			continue
		}
		report.Uploaded++
	}

	s.refreshHistory(ctx)
	return report, nil
}

func (s *SyncDriver) eligible(item *Item) bool {
	switch item.Status {
	case StatusQueued, StatusFailed:
		return true
	case StatusUploading:
		return time.Since(item.UpdatedAt) > s.conf.StaleUploadAfter()
	default:
		return false
	}
}

func (s *SyncDriver) uploadItem(ctx context.Context, item *Item) error {
	if err := s.outbox.UpdateStatus(ctx, item.ID, StatusUploading, ""); err != nil {
		return err
	}

	ack, err := s.client.Submit(ctx, wireType(item.Type), item.IdempotencyKey, item.Payload)
	if err != nil {
		if markErr := s.outbox.UpdateStatus(ctx, item.ID, StatusFailed, err.Error()); markErr != nil {
			logrus.WithError(markErr).WithField("item_id", item.ID).Error("failed to mark outbox item failed")
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"item_id": item.ID,
		"status":  ack.Status,
	}).Info("outbox item accepted by server")
	return s.outbox.Remove(ctx, item.ID)
}

// refreshHistory best-effort updates the offline history snapshot after a
// drain.
func (s *SyncDriver) refreshHistory(ctx context.Context) {
	history, err := s.client.Submissions(ctx, 50)
	if err != nil {
		logrus.WithError(err).Debug("could not refresh submission history")
		return
	}
	if err := s.outbox.CacheSubmissions(ctx, history); err != nil {
		logrus.WithError(err).Warn("could not cache submission history")
	}
}

// wireType maps an outbox item type to the server's submission type. CSV
// exports are statements that happen to have been captured from a file.
func wireType(itemType string) string {
	switch itemType {
	case ItemReceipt:
		return "receipt"
	case ItemStatement, ItemCSVExport:
		return "statement"
	default:
		return ""
	}
}
