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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgersnap/ledgersnap/model"
)

func adminRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	req.Header.Set("X-LedgerSnap-Key", "admin-secret")
	return req
}

func TestAdminRoutes_RequireSecretKey(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/tenants", nil)
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/tenants", nil)
	req.Header.Set("X-LedgerSnap-Key", "wrong-secret")
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateTenant_ValidationError(t *testing.T) {
	router, ds := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, adminRequest(t, "POST", "/tenants", map[string]string{"business_name": ""}))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "CreateTenant", mock.Anything, mock.Anything)
}

func TestGetAllTenants(t *testing.T) {
	router, ds := newTestRouter(t)

	ds.On("GetAllTenants", mock.Anything, 20, 0).Return([]model.Tenant{
		{TenantID: "tnt_1", BusinessCode: "ACME", BusinessName: "Acme Trading Ltd"},
	}, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, adminRequest(t, "GET", "/tenants", nil))

	assert.Equal(t, http.StatusOK, resp.Code)

	var tenants []model.Tenant
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &tenants))
	require.Len(t, tenants, 1)
	assert.Equal(t, "ACME", tenants[0].BusinessCode)
}

func TestInviteUser_ReturnsTokenOnce(t *testing.T) {
	router, ds := newTestRouter(t)
	email := gofakeit.Email()

	ds.On("GetTenantByID", mock.Anything, "tnt_1").Return(&model.Tenant{TenantID: "tnt_1", BusinessCode: "ACME"}, nil)
	ds.On("CreateUser", mock.Anything, mock.MatchedBy(func(u model.User) bool {
		return u.Email == email && u.TokenHash != ""
	})).Return(model.User{UserID: "usr_1", TenantID: "tnt_1", Email: email}, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, adminRequest(t, "POST", "/tenants/tnt_1/users", map[string]string{
		"email": email,
		"name":  "Jamie Doe",
		"role":  model.RoleStaff,
	}))

	assert.Equal(t, http.StatusCreated, resp.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	token, ok := body["token"].(string)
	require.True(t, ok)
	assert.Contains(t, token, "lsk_")
}

func TestInviteUser_BadEmail(t *testing.T) {
	router, ds := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, adminRequest(t, "POST", "/tenants/tnt_1/users", map[string]string{
		"email": "not-an-email",
	}))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
}

func TestUpdateUserStatus(t *testing.T) {
	router, ds := newTestRouter(t)

	ds.On("UpdateUserStatus", mock.Anything, "usr_1", model.UserDisabled).Return(nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, adminRequest(t, "PUT", "/users/usr_1/status", map[string]string{"status": model.UserDisabled}))

	assert.Equal(t, http.StatusOK, resp.Code)
	ds.AssertExpectations(t)
}
