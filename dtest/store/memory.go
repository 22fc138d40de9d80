package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
//
// Designed for tests and single-process runs where persistence across
// restarts is not needed. All operations are safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]RunRecord
	order   []string
	results map[string][]NodeResult
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]RunRecord),
		results: make(map[string][]NodeResult),
	}
}

// SaveRun implements Store.
func (m *MemoryStore) SaveRun(ctx context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.order = append(m.order, run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

// SaveResults implements Store.
func (m *MemoryStore) SaveResults(ctx context.Context, results []NodeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range results {
		m.results[res.RunID] = append(m.results[res.RunID], res)
	}
	return nil
}

// LoadRun implements Store.
func (m *MemoryStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return run, nil
}

// ListRuns implements Store.
func (m *MemoryStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunRecord, 0, len(m.order))
	// Newest first: insertion order reversed.
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.runs[m.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Results implements Store.
func (m *MemoryStore) Results(ctx context.Context, runID string) ([]NodeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.results[runID]
	if !ok {
		if _, haveRun := m.runs[runID]; !haveRun {
			return nil, ErrNotFound
		}
		return nil, nil
	}
	out := make([]NodeResult, len(results))
	copy(out, results)
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out, nil
}

// Close implements Store. It is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
