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

// Package outbox is the client-resident half of the submission pipeline: a
// durable SQLite staging area that survives restarts and network loss. Items
// are written locally at capture time and drained to the server later; the
// idempotency key minted at capture time is what makes the eventual upload
// safe to retry.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/ledgersnap/ledgersnap/model"
)

// Item types. CSV_EXPORT is a statement captured as a spreadsheet export; it
// travels over the wire as a statement submission.
const (
	ItemReceipt   = "RECEIPT"
	ItemStatement = "STATEMENT"
	ItemCSVExport = "CSV_EXPORT"
)

// Item statuses. UPLOADING marks an item handed to an in-flight drain; a
// stale UPLOADING item (process died mid-drain) becomes eligible again after
// a grace period.
const (
	StatusQueued    = "QUEUED"
	StatusUploading = "UPLOADING"
	StatusFailed    = "FAILED"
)

// Item is one captured submission waiting in the outbox.
type Item struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         string          `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewItem builds a queued item with a fresh id and idempotency key. The key
// is minted here, at capture time, so every future upload attempt of this
// item presents the same key.
func NewItem(itemType string, payload json.RawMessage) *Item {
	now := time.Now()
	return &Item{
		ID:             model.GenerateUUIDWithSuffix("ob"),
		Type:           itemType,
		Payload:        payload,
		IdempotencyKey: model.GenerateUUIDWithSuffix("idem"),
		Status:         StatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SQLiteOutbox stores items in a single-file SQLite database in WAL mode.
type SQLiteOutbox struct {
	db *sql.DB
}

// NewSQLiteOutbox opens (creating if needed) the outbox database at path.
func NewSQLiteOutbox(path string) (*SQLiteOutbox, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "opening outbox database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "opening outbox database")
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_items (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			payload_json BLOB NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'QUEUED',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sync_cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return nil, errors.Wrap(err, "creating outbox tables")
	}

	return &SQLiteOutbox{db: db}, nil
}

func (o *SQLiteOutbox) Close() error {
	return o.db.Close()
}

// Add persists a new item.
func (o *SQLiteOutbox) Add(ctx context.Context, item *Item) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO outbox_items (id, type, payload_json, idempotency_key, status, attempt_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Type, []byte(item.Payload), item.IdempotencyKey, item.Status, item.AttemptCount, item.LastError, item.CreatedAt, item.UpdatedAt)
	return errors.Wrap(err, "adding outbox item")
}

// List returns all items, oldest first.
func (o *SQLiteOutbox) List(ctx context.Context) ([]Item, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, type, payload_json, idempotency_key, status, attempt_count, COALESCE(last_error, ''), created_at, updated_at
		FROM outbox_items
		ORDER BY created_at
	`)
	if err != nil {
		return nil, errors.Wrap(err, "listing outbox items")
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		var payload []byte
		err = rows.Scan(&item.ID, &item.Type, &payload, &item.IdempotencyKey, &item.Status, &item.AttemptCount, &item.LastError, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scanning outbox item")
		}
		item.Payload = payload
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns one item by id, or nil when absent.
func (o *SQLiteOutbox) Get(ctx context.Context, id string) (*Item, error) {
	row := o.db.QueryRowContext(ctx, `
		SELECT id, type, payload_json, idempotency_key, status, attempt_count, COALESCE(last_error, ''), created_at, updated_at
		FROM outbox_items
		WHERE id = ?
	`, id)

	var item Item
	var payload []byte
	err := row.Scan(&item.ID, &item.Type, &payload, &item.IdempotencyKey, &item.Status, &item.AttemptCount, &item.LastError, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "retrieving outbox item")
	}
	item.Payload = payload
	return &item, nil
}

// UpdateStatus moves an item to a new status. Entering UPLOADING counts as
// an attempt.
func (o *SQLiteOutbox) UpdateStatus(ctx context.Context, id, status, lastError string) error {
	attemptBump := 0
	if status == StatusUploading {
		attemptBump = 1
	}
	res, err := o.db.ExecContext(ctx, `
		UPDATE outbox_items
		SET status = ?, last_error = ?, attempt_count = attempt_count + ?, updated_at = ?
		WHERE id = ?
	`, status, lastError, attemptBump, time.Now(), id)
	if err != nil {
		return errors.Wrap(err, "updating outbox item")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Errorf("outbox item %s not found", id)
	}
	return nil
}

// Remove deletes an item after the server has accepted it. Removal only
// happens after the server holds the idempotency key, so a crash between
// accept and remove at worst causes a duplicate upload the server ignores.
func (o *SQLiteOutbox) Remove(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM outbox_items WHERE id = ?`, id)
	return errors.Wrap(err, "removing outbox item")
}

// CacheSubmissions stores the latest server-side submission history so the
// client can show it while offline.
func (o *SQLiteOutbox) CacheSubmissions(ctx context.Context, data []byte) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO sync_cache (key, value, updated_at) VALUES ('submissions', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, data, time.Now())
	return errors.Wrap(err, "caching submissions")
}

// CachedSubmissions returns the last cached history snapshot, or nil when
// nothing has been cached yet.
func (o *SQLiteOutbox) CachedSubmissions(ctx context.Context) ([]byte, error) {
	row := o.db.QueryRowContext(ctx, `SELECT value FROM sync_cache WHERE key = 'submissions'`)
	var data []byte
	err := row.Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading cached submissions")
	}
	return data, nil
}
