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

package extraction

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/internal/request"
)

// ReceiptFields is what the extraction service reads off a receipt image.
// Any field may be empty; extraction is best-effort and never blocks a
// submission.
type ReceiptFields struct {
	Merchant string           `json:"merchant"`
	Total    *decimal.Decimal `json:"total"`
	Date     string           `json:"date"`
}

// Extractor is the receipt-image extraction collaborator.
type Extractor interface {
	ExtractReceipt(ctx context.Context, imageBase64 string) (*ReceiptFields, error)
}

// Client talks to the extraction service over JSON/HTTP.
type Client struct {
	baseURL string
	auth    string
	client  *http.Client
}

func NewClient(conf config.HttpServiceConfig) *Client {
	return &Client{
		baseURL: conf.Url,
		auth:    conf.Headers.Authorization,
		client:  &http.Client{Timeout: time.Duration(conf.Timeout) * time.Second},
	}
}

type extractRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// ExtractReceipt asks the extraction service for the merchant, total and date
// on the image. Callers treat an error as "no extraction", not as a failure
// of the submission itself.
func (c *Client) ExtractReceipt(ctx context.Context, imageBase64 string) (*ReceiptFields, error) {
	payload, err := request.ToJsonReq(extractRequest{ImageBase64: imageBase64})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract/receipt", payload)
	if err != nil {
		return nil, err
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	var fields ReceiptFields
	resp, err := request.Call(c.client, req, &fields)
	if err != nil {
		return nil, errors.Wrap(err, "calling extraction service")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	return &fields, nil
}
