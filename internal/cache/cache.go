// Package cache memoizes resolution outcomes in memory with separate lifetimes
// for successes and failures.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/samber/mo"
)

const (
	// DefaultSuccessTTL is how long a resolved value is trusted.
	DefaultSuccessTTL = 10 * time.Minute
	// DefaultFailureTTL is how long a failure is remembered before retrying.
	DefaultFailureTTL = 5 * time.Minute

	table = "entries"
)

// ErrTTLOrder is returned when the failure TTL is not strictly shorter than the success TTL.
var ErrTTLOrder = errors.New("failure TTL must be positive and shorter than success TTL")

// Config controls entry lifetimes. Now defaults to time.Now.
type Config struct {
	SuccessTTL time.Duration
	FailureTTL time.Duration
	Now        func() time.Time
}

// Entry is a cached outcome. An absent Value records a failure.
type Entry[T any] struct {
	Key       string
	Value     mo.Option[T]
	CreatedAt time.Time
}

// Cache is an in-memory TTL store safe for concurrent use.
type Cache[T any] struct {
	db         *memdb.MemDB
	successTTL time.Duration
	failureTTL time.Duration
	now        func() time.Time
}

// New creates a cache. Zero TTLs fall back to the defaults.
func New[T any](cfg Config) (*Cache[T], error) {
	if cfg.SuccessTTL == 0 {
		cfg.SuccessTTL = DefaultSuccessTTL
	}
	if cfg.FailureTTL == 0 {
		cfg.FailureTTL = DefaultFailureTTL
	}
	if cfg.FailureTTL < 0 || cfg.FailureTTL >= cfg.SuccessTTL {
		return nil, fmt.Errorf("%w (success %s, failure %s)", ErrTTLOrder, cfg.SuccessTTL, cfg.FailureTTL)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &Cache[T]{
		db:         db,
		successTTL: cfg.SuccessTTL,
		failureTTL: cfg.FailureTTL,
		now:        cfg.Now,
	}, nil
}

// TTL returns the lifetime that applies to an outcome.
func (c *Cache[T]) TTL(success bool) time.Duration {
	if success {
		return c.successTTL
	}
	return c.failureTTL
}

// Lookup returns the fresh entry for key. Expired entries are evicted and reported missing.
func (c *Cache[T]) Lookup(key string) (Entry[T], bool) {
	txn := c.db.Txn(false)
	raw, err := txn.First(table, "id", key)
	txn.Abort()
	if err != nil || raw == nil {
		return Entry[T]{}, false
	}

	e := raw.(*Entry[T])
	if c.now().Sub(e.CreatedAt) < c.TTL(e.Value.IsPresent()) {
		return *e, true
	}

	c.evict(e)
	return Entry[T]{}, false
}

// Get returns the cached outcome for key. The bool reports whether anything fresh was cached;
// the option is None when the cached outcome is a failure.
func (c *Cache[T]) Get(key string) (mo.Option[T], bool) {
	e, ok := c.Lookup(key)
	if !ok {
		return mo.None[T](), false
	}
	return e.Value, true
}

// Put records an outcome. When ok is false the value is ignored and a failure is stored.
func (c *Cache[T]) Put(key string, value T, ok bool) {
	v := mo.None[T]()
	if ok {
		v = mo.Some(value)
	}
	c.PutOption(key, v)
}

// PutOption records an outcome expressed as an option.
func (c *Cache[T]) PutOption(key string, value mo.Option[T]) {
	txn := c.db.Txn(true)
	if err := txn.Insert(table, &Entry[T]{Key: key, Value: value, CreatedAt: c.now()}); err != nil {
		txn.Abort()
		return
	}
	txn.Commit()
}

// Delete drops key, if present.
func (c *Cache[T]) Delete(key string) {
	txn := c.db.Txn(true)
	if _, err := txn.DeleteAll(table, "id", key); err != nil {
		txn.Abort()
		return
	}
	txn.Commit()
}

// Purge drops every entry.
func (c *Cache[T]) Purge() {
	txn := c.db.Txn(true)
	if _, err := txn.DeleteAll(table, "id_prefix", ""); err != nil {
		txn.Abort()
		return
	}
	txn.Commit()
}

// Len counts stored entries, including expired ones not yet evicted.
func (c *Cache[T]) Len() int {
	txn := c.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(table, "id_prefix", "")
	if err != nil {
		return 0
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n
}

// evict removes e unless it has been overwritten since it was read.
func (c *Cache[T]) evict(e *Entry[T]) {
	txn := c.db.Txn(true)
	raw, err := txn.First(table, "id", e.Key)
	if err != nil || raw != e {
		txn.Abort()
		return
	}
	if err := txn.Delete(table, e); err != nil {
		txn.Abort()
		return
	}
	txn.Commit()
}
