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

package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/internal/request"
)

// Ack mirrors the server's submission acknowledgment.
type Ack struct {
	Status  string          `json:"status"`
	QueueID string          `json:"queueId,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Client is the agent's HTTP client for the LedgerSnap server.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(conf config.AgentConfig) *Client {
	return &Client{
		baseURL: conf.ServerUrl,
		token:   conf.Token,
		client:  &http.Client{Timeout: conf.RequestTimeout()},
	}
}

type submitRequest struct {
	Type           string          `json:"type"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload"`
}

// Submit sends one submission. Any 2xx answer means the server holds the
// idempotency key and the item can leave the outbox; the ack's status says
// how far processing has come.
func (c *Client) Submit(ctx context.Context, submissionType, idempotencyKey string, payload json.RawMessage) (*Ack, error) {
	body, err := request.ToJsonReq(submitRequest{
		Type:           submissionType,
		IdempotencyKey: idempotencyKey,
		Payload:        payload,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var ack Ack
	resp, err := request.Call(c.client, req, &ack)
	if err != nil {
		return nil, errors.Wrap(err, "submitting to server")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("server rejected submission with status %d", resp.StatusCode)
	}
	return &ack, nil
}

// Submissions fetches the caller's recent submission history.
func (c *Client) Submissions(ctx context.Context, limit int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/submissions?limit=%d", c.baseURL, limit), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var history json.RawMessage
	resp, err := request.Call(c.client, req, &history)
	if err != nil {
		return nil, errors.Wrap(err, "fetching submissions")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("server returned status %d", resp.StatusCode)
	}
	return history, nil
}

// Health probes the server. A drain only starts when this succeeds, so a
// dead link fails fast instead of burning an upload attempt per item.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := request.Call(c.client, req, nil)
	if err != nil {
		return errors.Wrap(err, "server unreachable")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("server unhealthy, status %d", resp.StatusCode)
	}
	return nil
}
