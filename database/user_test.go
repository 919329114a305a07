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

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "tenant_id", "email", "name", "staff_code", "role", "status", "token_hash", "created_at"})
}

func TestCreateUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	user := model.User{
		TenantID:  "tnt_1",
		Email:     "jamie@acme.test",
		Name:      "Jamie Doe",
		StaffCode: "JD",
		Role:      model.RoleStaff,
		Status:    model.UserActive,
		TokenHash: "deadbeef",
	}

	mock.ExpectExec("INSERT INTO ledgersnap.users").
		WithArgs(sqlmock.AnyArg(), "tnt_1", "jamie@acme.test", "Jamie Doe", "JD", model.RoleStaff, model.UserActive, "deadbeef", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateUser(context.Background(), user)
	assert.NoError(t, err)
	assert.Contains(t, created.UserID, "usr_")
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO ledgersnap.users").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateUser(context.Background(), model.User{Email: "jamie@acme.test"})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetUserByTokenHash_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := userRows().
		AddRow("usr_1", "tnt_1", "jamie@acme.test", "Jamie Doe", "JD", model.RoleStaff, model.UserActive, "deadbeef", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM ledgersnap.users WHERE token_hash = ?").
		WithArgs("deadbeef").
		WillReturnRows(rows)

	user, err := ds.GetUserByTokenHash(context.Background(), "deadbeef")
	assert.NoError(t, err)
	assert.NotNil(t, user)
	assert.Equal(t, "usr_1", user.UserID)
	assert.Equal(t, model.UserActive, user.Status)
}

func TestGetUserByTokenHash_UnknownToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM ledgersnap.users WHERE token_hash = ?").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	user, err := ds.GetUserByTokenHash(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetUsersByTenant_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	rows := userRows().
		AddRow("usr_1", "tnt_1", "jamie@acme.test", "Jamie Doe", "JD", model.RoleStaff, model.UserActive, "deadbeef", time.Now()).
		AddRow("usr_2", "tnt_1", "morgan@acme.test", "Morgan Lee", "ML", model.RoleManager, model.UserActive, "cafebabe", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM ledgersnap.users WHERE tenant_id = ?").
		WithArgs("tnt_1").
		WillReturnRows(rows)

	users, err := ds.GetUsersByTenant(context.Background(), "tnt_1")
	assert.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, model.RoleManager, users[1].Role)
}

func TestUpdateUserStatus_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE ledgersnap.users SET status").
		WithArgs("usr_1", model.UserDisabled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.UpdateUserStatus(context.Background(), "usr_1", model.UserDisabled)
	assert.NoError(t, err)
}

func TestUpdateUserStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE ledgersnap.users SET status").
		WithArgs("usr_missing", model.UserDisabled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateUserStatus(context.Background(), "usr_missing", model.UserDisabled)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}
