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
package mocks

import (
	"context"
	"time"

	"github.com/ledgersnap/ledgersnap/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Idempotency methods

func (m *MockDataSource) CreateIdempotencyRecord(ctx context.Context, record *model.IdempotencyRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetIdempotencyRecord(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IdempotencyRecord), args.Error(1)
}

func (m *MockDataSource) GetIdempotencyRecordForTenant(ctx context.Context, key, tenantID string) (*model.IdempotencyRecord, error) {
	args := m.Called(ctx, key, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IdempotencyRecord), args.Error(1)
}

func (m *MockDataSource) UpdateIdempotencyRecord(ctx context.Context, key string, status string, result []byte) error {
	args := m.Called(ctx, key, status, result)
	return args.Error(0)
}

// Submission queue methods

func (m *MockDataSource) EnqueueSubmission(ctx context.Context, record *model.QueueRecord) (*model.QueueRecord, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) ClaimNextSubmission(ctx context.Context) (*model.QueueRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) MarkSubmissionSuccess(ctx context.Context, queueID string, result []byte) error {
	args := m.Called(ctx, queueID, result)
	return args.Error(0)
}

func (m *MockDataSource) MarkSubmissionFailure(ctx context.Context, queueID, status, lastError string, nextAttemptAt time.Time) error {
	args := m.Called(ctx, queueID, status, lastError, nextAttemptAt)
	return args.Error(0)
}

func (m *MockDataSource) GetSubmission(ctx context.Context, queueID string) (*model.QueueRecord, error) {
	args := m.Called(ctx, queueID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) ListSubmissions(ctx context.Context, tenantID, userID string, limit int) ([]model.QueueRecord, error) {
	args := m.Called(ctx, tenantID, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueRecord), args.Error(1)
}

// Tenant methods

func (m *MockDataSource) CreateTenant(ctx context.Context, tenant model.Tenant) (model.Tenant, error) {
	args := m.Called(ctx, tenant)
	return args.Get(0).(model.Tenant), args.Error(1)
}

func (m *MockDataSource) GetTenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *MockDataSource) GetAllTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Tenant), args.Error(1)
}

func (m *MockDataSource) UpdateTenantAssets(ctx context.Context, id, spreadsheetID, storageFolder string) error {
	args := m.Called(ctx, id, spreadsheetID, storageFolder)
	return args.Error(0)
}

// User methods

func (m *MockDataSource) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *MockDataSource) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockDataSource) GetUserByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockDataSource) GetUsersByTenant(ctx context.Context, tenantID string) ([]model.User, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *MockDataSource) UpdateUserStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}
