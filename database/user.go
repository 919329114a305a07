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

const userColumns = `user_id, tenant_id, email, name, staff_code, role, status, token_hash, created_at`

func (d Datasource) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	user.UserID = model.GenerateUUIDWithSuffix("usr")
	user.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO ledgersnap.users (user_id, tenant_id, email, name, staff_code, role, status, token_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.UserID, user.TenantID, user.Email, user.Name, user.StaffCode, user.Role, user.Status, user.TokenHash, user.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return model.User{}, apierror.NewAPIError(apierror.ErrConflict, "User with this email already exists", err)
		}
		return model.User{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create user", err)
	}

	return user, nil
}

func (d Datasource) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM ledgersnap.users
		WHERE user_id = $1
	`, id)

	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "User not found", id)
	}
	return user, nil
}

// GetUserByTokenHash resolves a bearer token (already hashed by the caller)
// to its user. Returns (nil, nil) when no user holds the token; the API layer
// turns that into 401 without leaking whether the token ever existed.
func (d Datasource) GetUserByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM ledgersnap.users
		WHERE token_hash = $1
	`, tokenHash)

	return scanUser(row)
}

func (d Datasource) GetUsersByTenant(ctx context.Context, tenantID string) ([]model.User, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM ledgersnap.users
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve users", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user := model.User{}
		err = rows.Scan(&user.UserID, &user.TenantID, &user.Email, &user.Name, &user.StaffCode, &user.Role, &user.Status, &user.TokenHash, &user.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan user data", err)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over users", err)
	}

	return users, nil
}

// UpdateUserStatus flips a user between active and disabled. Disabled users
// keep their token row but fail authentication.
func (d Datasource) UpdateUserStatus(ctx context.Context, id, status string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersnap.users
		SET status = $2
		WHERE user_id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update user status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update user status", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "User not found", id)
	}

	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := model.User{}
	err := row.Scan(&user.UserID, &user.TenantID, &user.Email, &user.Name, &user.StaffCode, &user.Role, &user.Status, &user.TokenHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve user", err)
	}
	return &user, nil
}
