// Package store provides the TTL-backed persistence boundary for cached
// trend queries and long-lived reference option sets. Implementations must
// reap expired records themselves; callers never see an entry past its TTL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is not present or already expired.
	ErrNotFound = errors.New("store: not found")
)

// Scope discriminates what kind of result an entry holds.
type Scope string

const (
	ScopeContentSearch Scope = "content-search"
	ScopeGlobalTrends  Scope = "global-trends"
	ScopeCountryTrends Scope = "country-trends"
	ScopeTimeSeries    Scope = "time-series"
)

// Option set names. Exactly these two singleton records exist.
const (
	OptionCategories = "categories"
	OptionGeographic = "geographic"
)

// OptionSetTTL is fixed at 30 days; option sets are reference data that
// rarely changes.
const OptionSetTTL = 30 * 24 * time.Hour

// EntryKey is the lookup tuple for a cached query result. QueryKey must be
// normalized (lowercased, trimmed) before it reaches the store; Region is
// empty for worldwide queries and Owner is empty for anonymous ones.
type EntryKey struct {
	QueryKey string
	Scope    Scope
	Region   string
	Owner    string
}

// CacheEntry is a short-lived cached query result. CreatedAt is the TTL
// anchor: the store expires the record a configured duration after it,
// independent of reads.
type CacheEntry struct {
	QueryKey  string          `json:"query_key"`
	Scope     Scope           `json:"scope"`
	Region    string          `json:"region,omitempty"`
	Owner     string          `json:"owner,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	HitCount  int64           `json:"hit_count"`
	CreatedAt time.Time       `json:"created_at"`
}

// Key returns the lookup tuple of the entry.
func (e *CacheEntry) Key() EntryKey {
	return EntryKey{QueryKey: e.QueryKey, Scope: e.Scope, Region: e.Region, Owner: e.Owner}
}

// OptionSet is a long-lived singleton reference record, replaced wholesale
// on refresh.
type OptionSet struct {
	Name        string          `json:"name"`
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"last_updated"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Store is the persistence interface the orchestration layer consumes.
type Store interface {
	// GetEntry returns the entry for the key, or ErrNotFound.
	GetEntry(ctx context.Context, key EntryKey) (*CacheEntry, error)

	// PutEntry upserts an entry keyed on its lookup tuple and starts a
	// fresh TTL from entry.CreatedAt. Upserting (rather than inserting a
	// duplicate row) keeps concurrent misses from leaving ambiguous
	// duplicates behind.
	PutEntry(ctx context.Context, entry *CacheEntry, ttl time.Duration) error

	// IncrementHit bumps the hit counter for the key without disturbing
	// the TTL anchor. Returns the new count, or ErrNotFound if the entry
	// expired between lookup and increment.
	IncrementHit(ctx context.Context, key EntryKey) (int64, error)

	// PurgeEntries deletes all trend-type cache records and returns how
	// many were removed.
	PurgeEntries(ctx context.Context) (int64, error)

	// GetOptionSet returns the named option set, or ErrNotFound.
	GetOptionSet(ctx context.Context, name string) (*OptionSet, error)

	// PutOptionSet replaces the named option set wholesale.
	PutOptionSet(ctx context.Context, set *OptionSet) error

	// Close releases underlying connections.
	Close() error
}
