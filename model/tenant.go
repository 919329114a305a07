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

import "time"

// Tenant owns one ledger spreadsheet and one file-store folder. BusinessCode
// is the short human code embedded in receipt identifiers.
type Tenant struct {
	TenantID      string    `json:"tenant_id"`
	BusinessCode  string    `json:"business_code"`
	BusinessName  string    `json:"business_name"`
	SpreadsheetID string    `json:"spreadsheet_id,omitempty"`
	StorageFolder string    `json:"storage_folder,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Provisioned reports whether the tenant's external assets exist. Worker
// pipelines refuse jobs for unprovisioned tenants.
func (t *Tenant) Provisioned() bool {
	return t.SpreadsheetID != "" && t.StorageFolder != ""
}
