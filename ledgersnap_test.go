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
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/database/mocks"
	"github.com/ledgersnap/ledgersnap/internal/extraction"
)

func testConfig(t *testing.T) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://test"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
	})
}

// newTestLedgerSnap wires a LedgerSnap against a mock datasource, a miniredis
// instance and fake collaborators.
func newTestLedgerSnap(t *testing.T) (*LedgerSnap, *mocks.MockDataSource, *fakeFiles, *fakeSheets) {
	t.Helper()
	testConfig(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ds := &mocks.MockDataSource{}
	files := &fakeFiles{}
	ledger := &fakeSheets{}

	return NewWithDeps(ds, client, files, ledger, nil), ds, files, ledger
}

type uploadedFile struct {
	Folder   string
	MimeType string
	Name     string
	Size     int
}

type fakeFiles struct {
	mu      sync.Mutex
	uploads []uploadedFile
	err     error
}

func (f *fakeFiles) Upload(_ context.Context, folder string, data []byte, mimeType, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, uploadedFile{Folder: folder, MimeType: mimeType, Name: name, Size: len(data)})
	return folder + "/" + name, nil
}

type appendedRows struct {
	SpreadsheetID string
	Tab           string
	Rows          [][]string
}

type fakeSheets struct {
	mu        sync.Mutex
	tabs      []string
	appends   []appendedRows
	appendErr error
}

func (f *fakeSheets) CreateSpreadsheet(_ context.Context, title string) (string, error) {
	return "sheet-" + title, nil
}

func (f *fakeSheets) EnsureTabs(_ context.Context, _ string, tabs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs = append(f.tabs, tabs...)
	return nil
}

func (f *fakeSheets) AppendRows(_ context.Context, spreadsheetID, tab string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, appendedRows{SpreadsheetID: spreadsheetID, Tab: tab, Rows: rows})
	return nil
}

type fakeExtractor struct {
	fields *extraction.ReceiptFields
	err    error
}

func (f *fakeExtractor) ExtractReceipt(_ context.Context, _ string) (*extraction.ReceiptFields, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}
