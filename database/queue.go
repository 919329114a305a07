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
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
)

const queueColumns = `queue_id, tenant_id, user_id, type, payload_json, idempotency_key, status, attempts, last_error, result_json, next_attempt_at, created_at, updated_at`

// EnqueueSubmission persists a new pending submission. The queue id is
// server-generated; the idempotency key links the row back to its ledger
// entry.
func (d Datasource) EnqueueSubmission(ctx context.Context, record *model.QueueRecord) (*model.QueueRecord, error) {
	record.QueueID = model.GenerateUUIDWithSuffix("sub")
	record.Status = model.StatusPending
	record.Attempts = 0
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	record.NextAttemptAt = record.CreatedAt

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO ledgersnap.submission_queue (queue_id, tenant_id, user_id, type, payload_json, idempotency_key, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, record.QueueID, record.TenantID, record.UserID, record.Type, []byte(record.Payload), record.IdempotencyKey,
		record.Status, record.Attempts, record.NextAttemptAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue submission", err)
	}

	return record, nil
}

// ClaimNextSubmission atomically claims the oldest due pending submission and
// flips it to processing. The inner select takes a row lock with SKIP LOCKED
// so concurrent claimers never block on (or double-claim) the same row; the
// outer status guard makes the claim a compare-and-swap. Returns (nil, nil)
// when nothing is due.
func (d Datasource) ClaimNextSubmission(ctx context.Context) (*model.QueueRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		UPDATE ledgersnap.submission_queue
		SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
		WHERE queue_id = (
			SELECT queue_id
			FROM ledgersnap.submission_queue
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING `+queueColumns)

	record, err := scanQueueRecord(row)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// MarkSubmissionSuccess finalizes a claimed submission with its result.
func (d Datasource) MarkSubmissionSuccess(ctx context.Context, queueID string, result []byte) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersnap.submission_queue
		SET status = 'completed', result_json = $2, last_error = NULL, updated_at = NOW()
		WHERE queue_id = $1
	`, queueID, nullableJSON(result))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark submission completed", err)
	}
	return requireAffected(res, queueID)
}

// MarkSubmissionFailure records a failed attempt. status decides the outcome:
// pending schedules a retry at nextAttemptAt, failed parks the row terminally
// (nextAttemptAt is ignored).
func (d Datasource) MarkSubmissionFailure(ctx context.Context, queueID, status, lastError string, nextAttemptAt time.Time) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersnap.submission_queue
		SET status = $2, last_error = $3, next_attempt_at = $4, updated_at = NOW()
		WHERE queue_id = $1
	`, queueID, status, lastError, nextAttemptAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark submission failure", err)
	}
	return requireAffected(res, queueID)
}

// GetSubmission retrieves a submission by queue id.
func (d Datasource) GetSubmission(ctx context.Context, queueID string) (*model.QueueRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM ledgersnap.submission_queue
		WHERE queue_id = $1
	`, queueID)

	record, err := scanQueueRecord(row)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Submission not found", queueID)
	}
	return record, nil
}

// ListSubmissions lists a tenant's recent submissions, newest first. userID
// narrows to one user when non-empty. Payloads are omitted; they can be large
// and history views never need them.
func (d Datasource) ListSubmissions(ctx context.Context, tenantID, userID string, limit int) ([]model.QueueRecord, error) {
	query := `
		SELECT queue_id, tenant_id, user_id, type, idempotency_key, status, attempts, last_error, result_json, next_attempt_at, created_at, updated_at
		FROM ledgersnap.submission_queue
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve submissions", err)
	}
	defer rows.Close()

	submissions := []model.QueueRecord{}
	for rows.Next() {
		record := model.QueueRecord{}
		var lastError sql.NullString
		var result []byte

		err = rows.Scan(&record.QueueID, &record.TenantID, &record.UserID, &record.Type, &record.IdempotencyKey,
			&record.Status, &record.Attempts, &lastError, &result, &record.NextAttemptAt, &record.CreatedAt, &record.UpdatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan submission data", err)
		}

		record.LastError = lastError.String
		record.Result = result
		submissions = append(submissions, record)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over submissions", err)
	}

	return submissions, nil
}

func scanQueueRecord(row *sql.Row) (*model.QueueRecord, error) {
	record := model.QueueRecord{}
	var payload, result []byte
	var lastError sql.NullString

	err := row.Scan(&record.QueueID, &record.TenantID, &record.UserID, &record.Type, &payload, &record.IdempotencyKey,
		&record.Status, &record.Attempts, &lastError, &result, &record.NextAttemptAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve submission", err)
	}

	record.Payload = payload
	record.Result = result
	record.LastError = lastError.String
	return &record, nil
}

func requireAffected(res sql.Result, queueID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update submission", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Submission not found", queueID)
	}
	return nil
}
