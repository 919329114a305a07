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

package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionType discriminates the tagged payload union carried by a queue
// record. The payload shape is validated at the API boundary before a record
// is ever enqueued.
type SubmissionType string

const (
	TypeReceipt   SubmissionType = "receipt"
	TypeStatement SubmissionType = "statement"
)

// Queue and idempotency statuses. completed and failed are terminal: once a
// record reaches either, no further transition occurs.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// QueueRecord is one accepted submission awaiting (or finished with)
// side-effecting processing. queue_id is server-generated and independent of
// the client's idempotency key.
type QueueRecord struct {
	QueueID        string          `json:"queue_id"`
	TenantID       string          `json:"tenant_id"`
	UserID         string          `json:"user_id"`
	Type           SubmissionType  `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IdempotencyRecord deduplicates submissions across retries. Keyed by the
// client-generated idempotency key; never deleted (audit trail).
type IdempotencyRecord struct {
	IdempotencyKey string          `json:"idempotency_key"`
	TenantID       string          `json:"tenant_id"`
	Endpoint       string          `json:"endpoint"`
	RequestHash    string          `json:"request_hash"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ReceiptPayload is the wire payload for a receipt submission. The image is
// carried inline as base64; extracted fields are best-effort and may be empty
// when extraction failed or was skipped offline.
type ReceiptPayload struct {
	ImageBase64 string           `json:"imageBase64"`
	Merchant    string           `json:"merchant,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	Date        string           `json:"date,omitempty"`
}

// TransactionLine is one extracted bank-statement transaction.
type TransactionLine struct {
	TxnDate       string           `json:"txn_date,omitempty"`
	Description   string           `json:"description,omitempty"`
	Debit         *decimal.Decimal `json:"debit,omitempty"`
	Credit        *decimal.Decimal `json:"credit,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
	CategoryGuess string           `json:"category_guess,omitempty"`
}

// StatementPayload is the wire payload for a statement submission. The source
// file is optional; transactions are required.
type StatementPayload struct {
	FileBase64    string            `json:"fileBase64,omitempty"`
	MimeType      string            `json:"mimeType,omitempty"`
	StatementDate string            `json:"statementDate,omitempty"`
	Transactions  []TransactionLine `json:"transactions"`
}

// ReceiptResult is the terminal result of a processed receipt submission.
type ReceiptResult struct {
	ReceiptID string `json:"receiptId"`
	FileID    string `json:"fileId"`
}

// StatementResult is the terminal result of a processed statement submission.
type StatementResult struct {
	FileID       string `json:"fileId,omitempty"`
	RowsAppended int    `json:"rowsAppended"`
}
