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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestCreateIdempotencyRecord_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	record := &model.IdempotencyRecord{
		IdempotencyKey: "idem-1",
		TenantID:       "tnt_1",
		Endpoint:       "submissions",
		RequestHash:    "abc123",
		Status:         model.StatusPending,
	}

	mock.ExpectExec("INSERT INTO ledgersnap.idempotency").
		WithArgs("idem-1", "tnt_1", "submissions", "abc123", model.StatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateIdempotencyRecord(context.Background(), record)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.WithinDuration(t, time.Now(), record.CreatedAt, time.Second)
}

func TestCreateIdempotencyRecord_DuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	record := &model.IdempotencyRecord{
		IdempotencyKey: "idem-1",
		TenantID:       "tnt_1",
		Endpoint:       "submissions",
		RequestHash:    "abc123",
		Status:         model.StatusPending,
	}

	mock.ExpectExec("INSERT INTO ledgersnap.idempotency").
		WithArgs("idem-1", "tnt_1", "submissions", "abc123", model.StatusPending, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	created, err := ds.CreateIdempotencyRecord(context.Background(), record)
	assert.NoError(t, err)
	assert.False(t, created)
}

func TestCreateIdempotencyRecord_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO ledgersnap.idempotency").
		WillReturnError(&pq.Error{Code: "42P01", Message: "relation does not exist"})

	_, err = ds.CreateIdempotencyRecord(context.Background(), &model.IdempotencyRecord{IdempotencyKey: "idem-1"})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}

func TestGetIdempotencyRecord_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := sqlmock.NewRows([]string{"idempotency_key", "tenant_id", "endpoint", "request_hash", "status", "result_json", "created_at"}).
		AddRow("idem-1", "tnt_1", "submissions", "abc123", model.StatusCompleted, []byte(`{"receiptId":"RC-ACME-JD-202406-0001"}`), time.Now())

	mock.ExpectQuery("SELECT idempotency_key, tenant_id, endpoint, request_hash, status, result_json, created_at FROM ledgersnap.idempotency WHERE idempotency_key = ?").
		WithArgs("idem-1").
		WillReturnRows(rows)

	record, err := ds.GetIdempotencyRecord(context.Background(), "idem-1")
	assert.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, model.StatusCompleted, record.Status)
	assert.JSONEq(t, `{"receiptId":"RC-ACME-JD-202406-0001"}`, string(record.Result))
}

func TestGetIdempotencyRecord_Absent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT idempotency_key, tenant_id, endpoint, request_hash, status, result_json, created_at FROM ledgersnap.idempotency WHERE idempotency_key = ?").
		WithArgs("idem-missing").
		WillReturnError(sql.ErrNoRows)

	record, err := ds.GetIdempotencyRecord(context.Background(), "idem-missing")
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func TestGetIdempotencyRecordForTenant_ScopesByTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT idempotency_key, tenant_id, endpoint, request_hash, status, result_json, created_at FROM ledgersnap.idempotency WHERE idempotency_key = \\$1 AND tenant_id = \\$2").
		WithArgs("idem-1", "tnt_other").
		WillReturnError(sql.ErrNoRows)

	record, err := ds.GetIdempotencyRecordForTenant(context.Background(), "idem-1", "tnt_other")
	assert.NoError(t, err)
	assert.Nil(t, record)
}

func TestUpdateIdempotencyRecord_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	result := []byte(`{"receiptId":"RC-ACME-JD-202406-0001"}`)

	mock.ExpectExec("UPDATE ledgersnap.idempotency SET status").
		WithArgs("idem-1", model.StatusCompleted, result).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateIdempotencyRecord(context.Background(), "idem-1", model.StatusCompleted, result)
	assert.NoError(t, err)

	err = mock.ExpectationsWereMet()
	assert.NoError(t, err)
}

func TestUpdateIdempotencyRecord_NilResultBecomesNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE ledgersnap.idempotency SET status").
		WithArgs("idem-1", model.StatusFailed, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateIdempotencyRecord(context.Background(), "idem-1", model.StatusFailed, nil)
	assert.NoError(t, err)
}

func TestUpdateIdempotencyRecord_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE ledgersnap.idempotency SET status").
		WithArgs("idem-missing", model.StatusCompleted, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateIdempotencyRecord(context.Background(), "idem-missing", model.StatusCompleted, nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}
