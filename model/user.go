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

const (
	RoleStaff   = "staff"
	RoleManager = "manager"

	UserActive   = "active"
	UserDisabled = "disabled"
)

// User is a staff member of a tenant. StaffCode is the short code embedded in
// receipt identifiers; TokenHash is the sha256 of the bearer token issued at
// invite time (the raw token is returned exactly once and never stored).
type User struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	StaffCode string    `json:"staff_code"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
