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

func (d Datasource) CreateTenant(ctx context.Context, tenant model.Tenant) (model.Tenant, error) {
	tenant.TenantID = model.GenerateUUIDWithSuffix("tnt")
	tenant.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO ledgersnap.tenants (tenant_id, business_code, business_name, spreadsheet_id, storage_folder, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tenant.TenantID, tenant.BusinessCode, tenant.BusinessName, tenant.SpreadsheetID, tenant.StorageFolder, tenant.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return model.Tenant{}, apierror.NewAPIError(apierror.ErrConflict, "Tenant with this business code already exists", err)
		}
		return model.Tenant{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create tenant", err)
	}

	return tenant, nil
}

func (d Datasource) GetTenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	tenant := model.Tenant{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT tenant_id, business_code, business_name, spreadsheet_id, storage_folder, created_at
		FROM ledgersnap.tenants
		WHERE tenant_id = $1
	`, id)

	// spreadsheet_id and storage_folder stay NULL until the tenant is
	// provisioned.
	var spreadsheetID, storageFolder sql.NullString
	err := row.Scan(&tenant.TenantID, &tenant.BusinessCode, &tenant.BusinessName, &spreadsheetID, &storageFolder, &tenant.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Tenant not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tenant", err)
	}
	tenant.SpreadsheetID = spreadsheetID.String
	tenant.StorageFolder = storageFolder.String

	return &tenant, nil
}

func (d Datasource) GetAllTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT tenant_id, business_code, business_name, spreadsheet_id, storage_folder, created_at
		FROM ledgersnap.tenants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tenants", err)
	}
	defer rows.Close()

	tenants := []model.Tenant{}
	for rows.Next() {
		tenant := model.Tenant{}
		var spreadsheetID, storageFolder sql.NullString
		err = rows.Scan(&tenant.TenantID, &tenant.BusinessCode, &tenant.BusinessName, &spreadsheetID, &storageFolder, &tenant.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan tenant data", err)
		}
		tenant.SpreadsheetID = spreadsheetID.String
		tenant.StorageFolder = storageFolder.String
		tenants = append(tenants, tenant)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over tenants", err)
	}

	return tenants, nil
}

// UpdateTenantAssets records the provisioned spreadsheet and storage folder
// on the tenant.
func (d Datasource) UpdateTenantAssets(ctx context.Context, id, spreadsheetID, storageFolder string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE ledgersnap.tenants
		SET spreadsheet_id = $2, storage_folder = $3
		WHERE tenant_id = $1
	`, id, spreadsheetID, storageFolder)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update tenant assets", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update tenant assets", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Tenant not found", id)
	}

	return nil
}
