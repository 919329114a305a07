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
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// CounterStore hands out per-tenant receipt sequence numbers. Sequences are
// scoped to (business, staff, month) so receipt ids stay short and restart
// every month. Redis INCR gives atomicity across workers; a crashed job may
// burn a number, leaving a gap, which is fine because ids only need to be
// unique, not dense.
type CounterStore struct {
	client redis.UniversalClient
}

func NewCounterStore(client redis.UniversalClient) *CounterStore {
	return &CounterStore{client: client}
}

// NextReceiptSequence returns the next sequence number for the scope.
func (c *CounterStore) NextReceiptSequence(ctx context.Context, businessCode, staffCode, monthKey string) (int64, error) {
	key := fmt.Sprintf("counters:%s:%s:%s", businessCode, staffCode, monthKey)
	return c.client.Incr(ctx, key).Result()
}

// FormatReceiptID renders the canonical receipt identifier, e.g.
// RC-ACME-JD-202406-0001. monthKey is the YYYY-MM ledger month; the dash is
// dropped inside the id.
func FormatReceiptID(businessCode, staffCode, monthKey string, sequence int64) string {
	return fmt.Sprintf("RC-%s-%s-%s-%04d", businessCode, staffCode, strings.ReplaceAll(monthKey, "-", ""), sequence)
}
