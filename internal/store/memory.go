package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*TransactionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*TransactionRecord)}
}

func (m *MemoryStore) Create(ctx context.Context, rec *TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.TransactionHash]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	stored := *rec
	m.records[rec.TransactionHash] = &stored
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, hash string) (*TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[hash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) Transition(ctx context.Context, hash string, to Status, update Update) (*TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[hash]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkTransition(rec.Status, to); err != nil {
		return nil, err
	}

	rec.Status = to
	if update.FromAddress != "" {
		rec.FromAddress = update.FromAddress
	}
	if update.SettlementTx != "" {
		rec.SettlementTx = update.SettlementTx
	}
	if update.Error != "" {
		rec.Error = update.Error
	}
	rec.UpdatedAt = time.Now().UTC()

	out := *rec
	return &out, nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]TransactionRecord, error) {
	m.mu.RLock()
	out := make([]TransactionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
