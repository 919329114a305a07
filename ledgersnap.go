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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ledgersnap/ledgersnap/config"
	"github.com/ledgersnap/ledgersnap/database"
	"github.com/ledgersnap/ledgersnap/internal/cache"
	"github.com/ledgersnap/ledgersnap/internal/extraction"
	"github.com/ledgersnap/ledgersnap/internal/filestore"
	redis_db "github.com/ledgersnap/ledgersnap/internal/redis-db"
	"github.com/ledgersnap/ledgersnap/internal/sheets"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// LedgerSnap is the main struct for the server side of the application: it
// owns the idempotency ledger, the submission queue and the collaborators the
// worker writes to.
type LedgerSnap struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	cache      cache.Cache
	counters   *CounterStore
	files      filestore.Store
	sheets     sheets.Ledger
	extractor  extraction.Extractor
}

// NewLedgerSnap initializes a new instance of LedgerSnap with the provided
// database datasource. It fetches the configuration and wires Redis, the
// file store and the sheets bridge from it.
func NewLedgerSnap(db database.IDataSource) (*LedgerSnap, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	files, err := filestore.NewS3Store(context.Background(), configuration)
	if err != nil {
		return nil, err
	}

	var extractor extraction.Extractor
	if configuration.Extraction.Url != "" {
		extractor = extraction.NewClient(configuration.Extraction)
	}

	newLedgerSnap := &LedgerSnap{
		datasource: db,
		redis:      redisClient.Client(),
		cache:      cache.NewCacheWithClient(redisClient.Client()),
		counters:   NewCounterStore(redisClient.Client()),
		files:      files,
		sheets:     sheets.NewClient(configuration.Sheets),
		extractor:  extractor,
	}
	return newLedgerSnap, nil
}

// NewWithDeps wires a LedgerSnap from explicit collaborators. Tests and
// embedded setups use this to swap in fakes.
func NewWithDeps(db database.IDataSource, redisClient redis.UniversalClient, files filestore.Store, ledger sheets.Ledger, extractor extraction.Extractor) *LedgerSnap {
	l := &LedgerSnap{
		datasource: db,
		redis:      redisClient,
		files:      files,
		sheets:     ledger,
		extractor:  extractor,
	}
	if redisClient != nil {
		l.cache = cache.NewCacheWithClient(redisClient)
		l.counters = NewCounterStore(redisClient)
	}
	return l
}
