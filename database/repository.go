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

package database

import (
	"context"
	"time"

	"github.com/ledgersnap/ledgersnap/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	idempotency     // Interface for idempotency ledger operations
	submissionQueue // Interface for submission queue operations
	tenant          // Interface for tenant-related operations
	user            // Interface for user-related operations
}

// idempotency defines methods for the idempotency ledger. The ledger is the
// exactly-once gate: one row per client idempotency key, inserted before the
// submission is enqueued and finalized when processing ends.
type idempotency interface {
	// CreateIdempotencyRecord inserts a new record; it returns false when the
	// key already exists.
	CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) (bool, error)
	// GetIdempotencyRecord retrieves a record by key; (nil, nil) when absent.
	GetIdempotencyRecord(ctx context.Context, key string) (*model.IdempotencyRecord, error)
	// UpdateIdempotencyRecord finalizes a record with its terminal status and
	// result.
	UpdateIdempotencyRecord(ctx context.Context, key string, status string, result []byte) error
	// GetIdempotencyRecordForTenant retrieves a record scoped to a tenant;
	// (nil, nil) when absent.
	GetIdempotencyRecordForTenant(ctx context.Context, key, tenantID string) (*model.IdempotencyRecord, error)
}

// submissionQueue defines methods for the durable submission queue.
type submissionQueue interface {
	// EnqueueSubmission persists a new pending submission.
	EnqueueSubmission(ctx context.Context, record *model.QueueRecord) (*model.QueueRecord, error)
	// ClaimNextSubmission atomically claims one due pending submission;
	// (nil, nil) when none is due.
	ClaimNextSubmission(ctx context.Context) (*model.QueueRecord, error)
	// MarkSubmissionSuccess marks a claimed submission completed with its
	// result.
	MarkSubmissionSuccess(ctx context.Context, queueID string, result []byte) error
	// MarkSubmissionFailure records a failed attempt; status picks retry
	// (pending) or terminal (failed).
	MarkSubmissionFailure(ctx context.Context, queueID, status, lastError string, nextAttemptAt time.Time) error
	// GetSubmission retrieves a submission by queue id.
	GetSubmission(ctx context.Context, queueID string) (*model.QueueRecord, error)
	// ListSubmissions lists recent submissions for a tenant, optionally
	// filtered by user.
	ListSubmissions(ctx context.Context, tenantID, userID string, limit int) ([]model.QueueRecord, error)
}

// tenant defines methods for handling tenants.
type tenant interface {
	CreateTenant(ctx context.Context, tenant model.Tenant) (model.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*model.Tenant, error)
	GetAllTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error)
	UpdateTenantAssets(ctx context.Context, id, spreadsheetID, storageFolder string) error
}

// user defines methods for handling users.
type user interface {
	CreateUser(ctx context.Context, user model.User) (model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	GetUsersByTenant(ctx context.Context, tenantID string) ([]model.User, error)
	UpdateUserStatus(ctx context.Context, id, status string) error
}
