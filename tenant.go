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
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
)

// CreateTenant registers a business and provisions its external assets: a
// ledger spreadsheet and a file-store folder. Provisioning failure leaves the
// tenant unprovisioned rather than rolling it back; the worker refuses its
// jobs until assets exist and provisioning can be retried out of band.
func (l *LedgerSnap) CreateTenant(ctx context.Context, businessName, businessCode string) (*model.Tenant, error) {
	if businessCode == "" {
		businessCode = deriveBusinessCode(businessName)
	}
	businessCode = strings.ToUpper(strings.TrimSpace(businessCode))
	if businessCode == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Business code could not be derived from name", businessName)
	}

	tenant, err := l.datasource.CreateTenant(ctx, model.Tenant{
		BusinessCode: businessCode,
		BusinessName: businessName,
	})
	if err != nil {
		return nil, err
	}

	spreadsheetID, err := l.sheets.CreateSpreadsheet(ctx, businessName+" Ledger")
	if err != nil {
		logrus.WithError(err).WithField("tenant_id", tenant.TenantID).Error("tenant created but spreadsheet provisioning failed")
		return &tenant, nil
	}

	storageFolder := strings.ToLower(businessCode)
	if err := l.datasource.UpdateTenantAssets(ctx, tenant.TenantID, spreadsheetID, storageFolder); err != nil {
		return nil, err
	}

	tenant.SpreadsheetID = spreadsheetID
	tenant.StorageFolder = storageFolder
	return &tenant, nil
}

func (l *LedgerSnap) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return l.datasource.GetTenantByID(ctx, id)
}

func (l *LedgerSnap) ListTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.datasource.GetAllTenants(ctx, limit, offset)
}

// InviteUser creates a staff member and issues their bearer token. The raw
// token is returned exactly once; only its hash is stored.
func (l *LedgerSnap) InviteUser(ctx context.Context, tenantID, email, name, role string) (*model.User, string, error) {
	if role == "" {
		role = model.RoleStaff
	}
	if role != model.RoleStaff && role != model.RoleManager {
		return nil, "", apierror.NewAPIError(apierror.ErrInvalidInput, "Unknown role", role)
	}

	// The tenant must exist before a user can be attached to it.
	if _, err := l.datasource.GetTenantByID(ctx, tenantID); err != nil {
		return nil, "", err
	}

	token := "lsk_" + strings.ReplaceAll(model.GenerateUUIDWithSuffix("tok"), "tok_", "")
	user, err := l.datasource.CreateUser(ctx, model.User{
		TenantID:  tenantID,
		Email:     email,
		Name:      name,
		StaffCode: deriveStaffCode(name, email),
		Role:      role,
		Status:    model.UserActive,
		TokenHash: HashToken(token),
	})
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// AuthenticateToken resolves a bearer token to its active user.
func (l *LedgerSnap) AuthenticateToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "Missing token", nil)
	}

	user, err := l.datasource.GetUserByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != model.UserActive {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid token", nil)
	}
	return user, nil
}

func (l *LedgerSnap) ListUsers(ctx context.Context, tenantID string) ([]model.User, error) {
	return l.datasource.GetUsersByTenant(ctx, tenantID)
}

func (l *LedgerSnap) SetUserStatus(ctx context.Context, userID, status string) error {
	if status != model.UserActive && status != model.UserDisabled {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Unknown status", status)
	}
	return l.datasource.UpdateUserStatus(ctx, userID, status)
}

// HashToken returns the stored fingerprint of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// deriveBusinessCode builds a short uppercase code from the business name:
// initials for multi-word names, the first four letters otherwise.
func deriveBusinessCode(name string) string {
	words := strings.Fields(name)
	if len(words) >= 2 {
		var b strings.Builder
		for _, word := range words {
			r := []rune(word)[0]
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
			}
		}
		return b.String()
	}
	if len(words) == 1 {
		letters := []rune{}
		for _, r := range words[0] {
			if unicode.IsLetter(r) {
				letters = append(letters, unicode.ToUpper(r))
			}
			if len(letters) == 4 {
				break
			}
		}
		return string(letters)
	}
	return ""
}

// deriveStaffCode builds the short code embedded in receipt ids: initials of
// the name, falling back to the first two letters of the email.
func deriveStaffCode(name, email string) string {
	words := strings.Fields(name)
	if len(words) >= 2 {
		var b strings.Builder
		for _, word := range words {
			r := []rune(word)[0]
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
			}
		}
		return b.String()
	}

	source := name
	if source == "" {
		source = email
	}
	letters := []rune{}
	for _, r := range source {
		if unicode.IsLetter(r) {
			letters = append(letters, unicode.ToUpper(r))
		}
		if len(letters) == 2 {
			break
		}
	}
	return string(letters)
}
