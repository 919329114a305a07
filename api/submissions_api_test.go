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

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgersnap/ledgersnap"
	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/database/mocks"
	"github.com/ledgersnap/ledgersnap/model"
)

const testToken = "lsk_testtoken"

var apiUser = &model.User{
	UserID:    "usr_1",
	TenantID:  "tnt_1",
	StaffCode: "JD",
	Role:      model.RoleStaff,
	Status:    model.UserActive,
}

func newTestRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		Server:     config.ServerConfig{SecretKey: "admin-secret"},
		DataSource: config.DataSourceConfig{Dns: "postgres://test"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
	})

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	ds := &mocks.MockDataSource{}
	l := ledgersnap.NewWithDeps(ds, redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil, nil, nil)
	router := NewAPI(l).Router()
	return router, ds
}

func authenticateUser(ds *mocks.MockDataSource) {
	ds.On("GetUserByTokenHash", mock.Anything, ledgersnap.HashToken(testToken)).Return(apiUser, nil)
}

func submitBody(t *testing.T, submissionType, idemKey string, payload interface{}) *bytes.Buffer {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"type":           submissionType,
		"idempotencyKey": idemKey,
		"payload":        json.RawMessage(raw),
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCreateSubmission_RequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/submissions", submitBody(t, "receipt", "idem-1", map[string]string{"imageBase64": "aGVsbG8="}))
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateSubmission_FirstAcceptQueues(t *testing.T) {
	router, ds := newTestRouter(t)
	authenticateUser(ds)

	ds.On("GetIdempotencyRecordForTenant", mock.Anything, "idem-1", "tnt_1").Return(nil, nil)
	ds.On("CreateIdempotencyRecord", mock.Anything, mock.Anything).Return(true, nil)
	ds.On("EnqueueSubmission", mock.Anything, mock.Anything).Return(&model.QueueRecord{QueueID: "sub_1"}, nil)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/submissions", submitBody(t, "receipt", "idem-1", map[string]string{"imageBase64": "aGVsbG8="}))
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusAccepted, resp.Code)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
	assert.Equal(t, "queued", ack["status"])
	assert.Equal(t, "sub_1", ack["queueId"])
}

func TestCreateSubmission_MalformedPayloadRejected(t *testing.T) {
	router, ds := newTestRouter(t)
	authenticateUser(ds)

	tests := []struct {
		name string
		body *bytes.Buffer
	}{
		{"unknown type", submitBody(t, "invoice", "idem-1", map[string]string{})},
		{"missing key", submitBody(t, "receipt", "", map[string]string{"imageBase64": "aGVsbG8="})},
		{"receipt without image", submitBody(t, "receipt", "idem-1", map[string]string{"merchant": "Cafe"})},
		{"statement without transactions", submitBody(t, "statement", "idem-1", map[string]interface{}{"transactions": []string{}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/submissions", tt.body)
			req.Header.Set("Authorization", "Bearer "+testToken)
			router.ServeHTTP(resp, req)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}

	ds.AssertNotCalled(t, "CreateIdempotencyRecord", mock.Anything, mock.Anything)
}

func TestCreateSubmission_DuplicateCompletedAnswers200(t *testing.T) {
	router, ds := newTestRouter(t)
	authenticateUser(ds)

	payload := map[string]string{"imageBase64": "aGVsbG8="}
	raw, _ := json.Marshal(payload)

	ds.On("GetIdempotencyRecordForTenant", mock.Anything, "idem-1", "tnt_1").Return(&model.IdempotencyRecord{
		IdempotencyKey: "idem-1",
		RequestHash:    ledgersnap.HashPayload(raw),
		Status:         model.StatusCompleted,
		Result:         json.RawMessage(`{"receiptId":"RC-ACME-JD-202406-0001"}`),
	}, nil)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/submissions", submitBody(t, "receipt", "idem-1", payload))
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
	assert.Equal(t, "completed", ack["status"])
	assert.NotNil(t, ack["result"])
}

func TestCreateSubmission_KeyReuseConflicts(t *testing.T) {
	router, ds := newTestRouter(t)
	authenticateUser(ds)

	ds.On("GetIdempotencyRecordForTenant", mock.Anything, "idem-1", "tnt_1").Return(&model.IdempotencyRecord{
		IdempotencyKey: "idem-1",
		RequestHash:    "a-different-hash",
		Status:         model.StatusCompleted,
	}, nil)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/submissions", submitBody(t, "receipt", "idem-1", map[string]string{"imageBase64": "aGVsbG8="}))
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestListSubmissions(t *testing.T) {
	router, ds := newTestRouter(t)
	authenticateUser(ds)

	ds.On("ListSubmissions", mock.Anything, "tnt_1", "", 20).Return([]model.QueueRecord{
		{QueueID: "sub_1", TenantID: "tnt_1", Status: model.StatusCompleted},
	}, nil)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Submissions []model.QueueRecord `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Submissions, 1)
	assert.Equal(t, "sub_1", body.Submissions[0].QueueID)
}

func TestGetSubmission_NotFoundForOtherTenant(t *testing.T) {
	router, ds := newTestRouter(t)
	authenticateUser(ds)

	ds.On("GetSubmission", mock.Anything, "sub_9").Return(&model.QueueRecord{QueueID: "sub_9", TenantID: "tnt_other"}, nil)

	resp := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/submissions/sub_9", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}
