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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgersnap/ledgersnap/internal/apierror"
	"github.com/ledgersnap/ledgersnap/model"
)

func TestCreateTenant_ProvisionsAssets(t *testing.T) {
	l, ds, _, _ := newTestLedgerSnap(t)

	ds.On("CreateTenant", mock.Anything, mock.MatchedBy(func(tn model.Tenant) bool {
		return tn.BusinessCode == "ATL" && tn.BusinessName == "Acme Trading Ltd"
	})).Return(model.Tenant{TenantID: "tnt_1", BusinessCode: "ATL", BusinessName: "Acme Trading Ltd"}, nil)
	ds.On("UpdateTenantAssets", mock.Anything, "tnt_1", "sheet-Acme Trading Ltd Ledger", "atl").Return(nil)

	tenant, err := l.CreateTenant(context.Background(), "Acme Trading Ltd", "")
	require.NoError(t, err)
	assert.True(t, tenant.Provisioned())
	assert.Equal(t, "atl", tenant.StorageFolder)
	ds.AssertExpectations(t)
}

func TestCreateTenant_ExplicitCodeUppercased(t *testing.T) {
	l, ds, _, _ := newTestLedgerSnap(t)

	ds.On("CreateTenant", mock.Anything, mock.MatchedBy(func(tn model.Tenant) bool {
		return tn.BusinessCode == "ACME"
	})).Return(model.Tenant{TenantID: "tnt_1", BusinessCode: "ACME"}, nil)
	ds.On("UpdateTenantAssets", mock.Anything, "tnt_1", mock.Anything, "acme").Return(nil)

	_, err := l.CreateTenant(context.Background(), "Acme Trading Ltd", "acme")
	assert.NoError(t, err)
}

func TestDeriveBusinessCode(t *testing.T) {
	assert.Equal(t, "ATL", deriveBusinessCode("Acme Trading Ltd"))
	assert.Equal(t, "ACME", deriveBusinessCode("Acmecorp"))
	assert.Equal(t, "", deriveBusinessCode("   "))
}

func TestDeriveStaffCode(t *testing.T) {
	assert.Equal(t, "JD", deriveStaffCode("Jamie Doe", ""))
	assert.Equal(t, "MAL", deriveStaffCode("Morgan Avery Lee", ""))
	assert.Equal(t, "JA", deriveStaffCode("Jamie", ""))
	assert.Equal(t, "MO", deriveStaffCode("", "morgan@acme.test"))
}

func TestInviteUser_IssuesTokenOnce(t *testing.T) {
	l, ds, _, _ := newTestLedgerSnap(t)

	ds.On("GetTenantByID", mock.Anything, "tnt_1").Return(testTenant, nil)
	ds.On("CreateUser", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		return u.TenantID == "tnt_1" && u.StaffCode == "JD" && u.Status == model.UserActive && u.TokenHash != ""
	})).Return(model.User{UserID: "usr_1", TenantID: "tnt_1", StaffCode: "JD"}, nil)

	user, token, err := l.InviteUser(context.Background(), "tnt_1", "jamie@acme.test", "Jamie Doe", "")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.UserID)
	assert.Contains(t, token, "lsk_")

	// The stored hash must match the issued token.
	var stored model.User
	for _, call := range ds.Calls {
		if call.Method == "CreateUser" {
			stored = call.Arguments.Get(1).(model.User)
		}
	}
	assert.Equal(t, HashToken(token), stored.TokenHash)
}

func TestInviteUser_UnknownRole(t *testing.T) {
	l, _, _, _ := newTestLedgerSnap(t)

	_, _, err := l.InviteUser(context.Background(), "tnt_1", "jamie@acme.test", "Jamie Doe", "admin")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
}

func TestAuthenticateToken_Valid(t *testing.T) {
	l, ds, _, _ := newTestLedgerSnap(t)

	token := "lsk_testtoken"
	ds.On("GetUserByTokenHash", mock.Anything, HashToken(token)).Return(&model.User{
		UserID: "usr_1",
		Status: model.UserActive,
	}, nil)

	user, err := l.AuthenticateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.UserID)
}

func TestAuthenticateToken_DisabledUser(t *testing.T) {
	l, ds, _, _ := newTestLedgerSnap(t)

	token := "lsk_testtoken"
	ds.On("GetUserByTokenHash", mock.Anything, HashToken(token)).Return(&model.User{
		UserID: "usr_1",
		Status: model.UserDisabled,
	}, nil)

	_, err := l.AuthenticateToken(context.Background(), token)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrUnauthorized, apiErr.Code)
}

func TestAuthenticateToken_UnknownToken(t *testing.T) {
	l, ds, _, _ := newTestLedgerSnap(t)

	ds.On("GetUserByTokenHash", mock.Anything, mock.Anything).Return(nil, nil)

	_, err := l.AuthenticateToken(context.Background(), "lsk_bogus")
	assert.Error(t, err)
}
