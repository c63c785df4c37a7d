// internal/shardstore/keyops.go
//
// ddoccache.KeyOps implementation backed by sharded MySQL pools.
//
// Context
// -------
// A clustered document database is partitioned by db_name across an
// arbitrary number of shards.  Store resolves a db_name to its shard's
// *sqlx.DB lazily, opening (and caching) one small pool per shard the first
// time it is needed — the same lazy-pool-per-partition shape the teacher
// uses per tenant in internal/tenant/loader.go, generalized here from "one
// pool per tenant host" to "one pool per shard".
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package shardstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/nimbusdb/ddoccache/internal/ddoccache"
)

// ShardOf maps a logical database name to the shard key that owns it.
// Callers typically supply a simple hash-mod-N or a lookup-table closure;
// Store never interprets the shard key itself beyond passing it to DSN.
type ShardOf func(dbName string) string

// Store implements ddoccache.KeyOps for the "ddoc" tag: arg is always a
// DocKey.  Exactly one Store should be registered under "ddoc" in a
// ddoccache.Registry.
type Store struct {
	dsnTemplate string
	password    string
	shardOf     ShardOf

	mu    sync.Mutex
	pools map[string]*sqlx.DB
}

// NewStore builds a Store.  dsnTemplate must contain three %s verbs, filled
// with (shardKey, password, shardKey) — matching the teacher's
// buildTenantDSN shape: "%s:%s@tcp(127.0.0.1:3306)/%s?parseTime=true&loc=Local".
func NewStore(dsnTemplate, password string, shardOf ShardOf) *Store {
	return &Store{
		dsnTemplate: dsnTemplate,
		password:    password,
		shardOf:     shardOf,
		pools:       make(map[string]*sqlx.DB),
	}
}

// DBName implements ddoccache.KeyOps.
func (s *Store) DBName(arg any) string {
	return arg.(DocKey).DBName
}

// DDocID implements ddoccache.KeyOps.
func (s *Store) DDocID(arg any) string {
	return arg.(DocKey).DDocID
}

// Recover implements ddoccache.KeyOps: resolve the owning shard, fetch the
// design_document row, and hand the cache that row (a *DesignDocument) as
// the cached Value.
func (s *Store) Recover(ctx context.Context, arg any) (ddoccache.Value, error) {
	key := arg.(DocKey)

	db, err := s.shardPool(key.DBName)
	if err != nil {
		return nil, err
	}

	doc, err := byDocKey(ctx, db, key)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// shardPool returns the cached pool for dbName's shard, opening one on
// first use.
func (s *Store) shardPool(dbName string) (*sqlx.DB, error) {
	shardKey := s.shardOf(dbName)

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.pools[shardKey]; ok {
		return db, nil
	}

	dsn := fmt.Sprintf(s.dsnTemplate, shardKey, s.password, shardKey)
	db, err := OpenWithOptions(dsn, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("shardstore: open shard %q: %w", shardKey, err)
	}
	s.pools[shardKey] = db
	return db, nil
}

// Close tears down every cached shard pool.  Intended for graceful process
// shutdown, alongside Cache.Close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for key, db := range s.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.pools, key)
	}
	return firstErr
}
