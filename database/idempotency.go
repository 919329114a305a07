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
	"time"

	"github.com/lib/pq"

	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
)

// CreateIdempotencyRecord inserts the record and reports whether this call
// won the key. A unique violation means another request with the same key got
// there first; that is the normal duplicate path, not an error.
func (d Datasource) CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) (bool, error) {
	record.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO ledgersnap.idempotency (idempotency_key, tenant_id, endpoint, request_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.IdempotencyKey, record.TenantID, record.Endpoint, record.RequestHash, record.Status, record.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create idempotency record", err)
	}

	return true, nil
}

// GetIdempotencyRecord retrieves a record by key. Returns (nil, nil) when the
// key has never been seen.
func (d Datasource) GetIdempotencyRecord(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT idempotency_key, tenant_id, endpoint, request_hash, status, result_json, created_at
		FROM ledgersnap.idempotency
		WHERE idempotency_key = $1
	`, key)

	return scanIdempotencyRecord(row)
}

// GetIdempotencyRecordForTenant is GetIdempotencyRecord scoped to a tenant,
// so one tenant can never observe another tenant's keys.
func (d Datasource) GetIdempotencyRecordForTenant(ctx context.Context, key, tenantID string) (*model.IdempotencyRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT idempotency_key, tenant_id, endpoint, request_hash, status, result_json, created_at
		FROM ledgersnap.idempotency
		WHERE idempotency_key = $1 AND tenant_id = $2
	`, key, tenantID)

	return scanIdempotencyRecord(row)
}

// UpdateIdempotencyRecord finalizes a record. result may be nil for failures
// without a structured result.
func (d Datasource) UpdateIdempotencyRecord(ctx context.Context, key string, status string, result []byte) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersnap.idempotency
		SET status = $2, result_json = $3
		WHERE idempotency_key = $1
	`, key, status, nullableJSON(result))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update idempotency record", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update idempotency record", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Idempotency record not found", key)
	}

	return nil
}

func scanIdempotencyRecord(row *sql.Row) (*model.IdempotencyRecord, error) {
	record := model.IdempotencyRecord{}
	var result []byte

	err := row.Scan(&record.IdempotencyKey, &record.TenantID, &record.Endpoint, &record.RequestHash, &record.Status, &result, &record.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve idempotency record", err)
	}

	record.Result = result
	return &record, nil
}

// nullableJSON maps an empty byte slice to SQL NULL so JSONB columns never
// hold an empty string.
func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
