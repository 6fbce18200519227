// Package jobstore persists the history of mint jobs.
package jobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"nftmint/internal/config"
)

// Record is the persisted form of a mint job.
type Record struct {
	RequestID      string    `json:"requestId"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Account        string    `json:"account"`
	ValueWei       string    `json:"valueWei"`
	State          string    `json:"state"`
	TxHash         string    `json:"txHash,omitempty"`
	TokenID        string    `json:"tokenId,omitempty"`
	Cause          string    `json:"cause,omitempty"`
	Error          string    `json:"error,omitempty"`
	Abandoned      bool      `json:"abandoned,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store abstracts job persistence. Get and FindByKey return nil, nil when
// nothing matches.
type Store interface {
	Get(ctx context.Context, requestID string) (*Record, error)
	FindByKey(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, record Record) error
	ListByAccount(ctx context.Context, account string, limit int) ([]Record, error)
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("unknown job store %q", cfg.Driver)
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Record),
	}
}

func (m *MemoryStore) Get(_ context.Context, requestID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[requestID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) FindByKey(_ context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Record
	for _, rec := range m.data {
		if rec.IdempotencyKey != key {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			r := rec
			found = &r
		}
	}
	return found, nil
}

func (m *MemoryStore) Save(_ context.Context, record Record) error {
	if record.RequestID == "" {
		return fmt.Errorf("record without request id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[record.RequestID] = record
	return nil
}

func (m *MemoryStore) ListByAccount(_ context.Context, account string, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.data {
		if strings.EqualFold(rec.Account, account) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
