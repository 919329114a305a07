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

package sheets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/internal/request"
)

// Ledger is the structured-ledger collaborator. EnsureTabs is idempotent
// (creating an existing tab is a no-op); AppendRows is append-only, there is
// no upsert.
type Ledger interface {
	CreateSpreadsheet(ctx context.Context, title string) (string, error)
	EnsureTabs(ctx context.Context, spreadsheetID string, tabs []string) error
	AppendRows(ctx context.Context, spreadsheetID, tab string, rows [][]string) error
}

// Client talks to the spreadsheet bridge service over JSON/HTTP.
type Client struct {
	baseURL string
	auth    string
	client  *http.Client
}

// NewClient builds a Client from the sheets collaborator configuration.
func NewClient(conf config.HttpServiceConfig) *Client {
	return &Client{
		baseURL: conf.Url,
		auth:    conf.Headers.Authorization,
		client:  &http.Client{Timeout: time.Duration(conf.Timeout) * time.Second},
	}
}

type createSpreadsheetRequest struct {
	Title string `json:"title"`
}

type createSpreadsheetResponse struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Error         string `json:"error,omitempty"`
}

type ensureTabsRequest struct {
	Tabs []string `json:"tabs"`
}

type appendRowsRequest struct {
	Rows [][]string `json:"rows"`
}

type bridgeResponse struct {
	Error string `json:"error,omitempty"`
}

// CreateSpreadsheet provisions a new spreadsheet and returns its id.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string) (string, error) {
	var resp createSpreadsheetResponse
	if err := c.post(ctx, "/spreadsheets", createSpreadsheetRequest{Title: title}, &resp); err != nil {
		return "", err
	}
	if resp.SpreadsheetID == "" {
		return "", errors.New("bridge returned no spreadsheet id")
	}
	return resp.SpreadsheetID, nil
}

// EnsureTabs creates any missing tabs on the spreadsheet.
func (c *Client) EnsureTabs(ctx context.Context, spreadsheetID string, tabs []string) error {
	route := fmt.Sprintf("/spreadsheets/%s/tabs", url.PathEscape(spreadsheetID))
	var resp bridgeResponse
	return c.post(ctx, route, ensureTabsRequest{Tabs: tabs}, &resp)
}

// AppendRows appends rows to the named tab.
func (c *Client) AppendRows(ctx context.Context, spreadsheetID, tab string, rows [][]string) error {
	route := fmt.Sprintf("/spreadsheets/%s/tabs/%s/rows", url.PathEscape(spreadsheetID), url.PathEscape(tab))
	var resp bridgeResponse
	return c.post(ctx, route, appendRowsRequest{Rows: rows}, &resp)
}

func (c *Client) post(ctx context.Context, route string, body, response interface{}) error {
	payload, err := request.ToJsonReq(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, payload)
	if err != nil {
		return err
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	resp, err := request.Call(c.client, req, response)
	if err != nil {
		return errors.Wrapf(err, "calling sheets bridge %s", route)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("sheets bridge %s returned status %d", route, resp.StatusCode)
	}
	return nil
}
