package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
	ErrClosed   = errors.New("storage closed")
)

// Patch is a partial update. Keys are top-level JSON field names;
// a nil value removes the field from the document.
type Patch map[string]any

// Predicate selects documents in Query. A nil Predicate matches everything.
type Predicate func(doc json.RawMessage) bool

// Store is the persistence contract used by the engine.
//
// Update is atomic per call; nothing is assumed across calls.
type Store interface {
	Create(ctx context.Context, collection, id string, record any) error
	Update(ctx context.Context, collection, id string, patch Patch) error
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, pred Predicate) ([]json.RawMessage, error)
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "" or "memory": in-process only
//   - "file": memory + snapshot/journal under Path
//   - "sqlite": SQLite database file at Path
//   - "redis": Redis server at Redis.Addr
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "eventsched"
}
