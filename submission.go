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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
)

var tracer = otel.Tracer("ledgersnap.submission")

const submissionsEndpoint = "submissions"

// SubmissionAck is the server's answer to a submission. Status "queued" means
// this request won the idempotency key and a queue record now exists; the
// other statuses echo the state of an earlier request with the same key.
type SubmissionAck struct {
	Status  string          `json:"status"`
	QueueID string          `json:"queueId,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// AcceptSubmission is the idempotency gate in front of the queue. The first
// request with a key enqueues work; every retry with the same key and payload
// gets an acknowledgment reflecting how far that work has progressed, and
// never a second queue record. A retry whose payload differs from the
// original is a client bug and is rejected outright.
func (l *LedgerSnap) AcceptSubmission(ctx context.Context, user *model.User, submissionType model.SubmissionType, idempotencyKey string, payload json.RawMessage) (*SubmissionAck, error) {
	ctx, span := tracer.Start(ctx, "AcceptSubmission")
	defer span.End()
	span.SetAttributes(attribute.String("submission.type", string(submissionType)))

	requestHash := HashPayload(payload)

	existing, err := l.datasource.GetIdempotencyRecordForTenant(ctx, idempotencyKey, user.TenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return l.ackExisting(existing, requestHash)
	}

	created, err := l.datasource.CreateIdempotencyRecord(ctx, &model.IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		TenantID:       user.TenantID,
		Endpoint:       submissionsEndpoint,
		RequestHash:    requestHash,
		Status:         model.StatusPending,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the insert race to a concurrent request with the same key.
		existing, err = l.datasource.GetIdempotencyRecordForTenant(ctx, idempotencyKey, user.TenantID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to resolve idempotency record", idempotencyKey)
		}
		return l.ackExisting(existing, requestHash)
	}

	record, err := l.datasource.EnqueueSubmission(ctx, &model.QueueRecord{
		TenantID:       user.TenantID,
		UserID:         user.UserID,
		Type:           submissionType,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		// The key is burned but no work exists for it. Fail the ledger entry
		// so a client retry surfaces the failure instead of hanging on
		// "pending" forever.
		failure, _ := json.Marshal(map[string]string{"error": "failed to enqueue submission"})
		if updateErr := l.datasource.UpdateIdempotencyRecord(ctx, idempotencyKey, model.StatusFailed, failure); updateErr != nil {
			return nil, updateErr
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("submission.queue_id", record.QueueID))
	return &SubmissionAck{Status: "queued", QueueID: record.QueueID}, nil
}

func (l *LedgerSnap) ackExisting(existing *model.IdempotencyRecord, requestHash string) (*SubmissionAck, error) {
	if existing.RequestHash != requestHash {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Idempotency key reused with a different payload", existing.IdempotencyKey)
	}

	switch existing.Status {
	case model.StatusCompleted:
		return &SubmissionAck{Status: model.StatusCompleted, Result: existing.Result}, nil
	case model.StatusFailed:
		return &SubmissionAck{Status: model.StatusFailed, Result: existing.Result}, nil
	default:
		return &SubmissionAck{Status: existing.Status}, nil
	}
}

// GetSubmission returns one queue record by id, scoped to the caller's
// tenant.
func (l *LedgerSnap) GetSubmission(ctx context.Context, user *model.User, queueID string) (*model.QueueRecord, error) {
	record, err := l.datasource.GetSubmission(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if record.TenantID != user.TenantID {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Submission not found", queueID)
	}
	return record, nil
}

// ListSubmissions returns the tenant's recent submission history, newest
// first. The listing is tenant-wide: every user of the tenant sees the same
// history, failed items included, so a manager can spot stuck submissions.
// The listing is served through a short-lived cache: history screens
// poll aggressively while a drain is in progress and the underlying query is
// always the same.
func (l *LedgerSnap) ListSubmissions(ctx context.Context, user *model.User, limit int) ([]model.QueueRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("submissions:%s:%d", user.TenantID, limit)
	if l.cache != nil {
		var cached []model.QueueRecord
		if err := l.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	submissions, err := l.datasource.ListSubmissions(ctx, user.TenantID, "", limit)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		_ = l.cache.Set(ctx, cacheKey, submissions, 10*time.Second)
	}
	return submissions, nil
}

// HashPayload returns the canonical fingerprint of a request payload, used to
// detect idempotency-key reuse across different payloads.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
