package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/hpungsan/stasher/internal/stash"
)

// ConfigStore persists the state that survives restarts: bindings, the
// ignored-cell mask, and the last reconciled tab names.
type ConfigStore interface {
	LoadBindings(ctx context.Context) ([]stash.Binding, error)
	SaveBindings(ctx context.Context, bindings []stash.Binding) error
	ReplaceBindings(ctx context.Context, bindings []stash.Binding) error
	LoadIgnoredCells(ctx context.Context) (stash.CellMask, error)
	SaveIgnoredCells(ctx context.Context, mask stash.CellMask) error
	LoadContainerNames(ctx context.Context) ([]string, error)
	SaveContainerNames(ctx context.Context, names []string) error
}

// Recorder receives the history entry of every finished batch.
type Recorder interface {
	RecordBatch(ctx context.Context, rec stash.BatchRecord) (stash.BatchRecord, error)
}

// MemoryStore is an in-process ConfigStore and Recorder.
type MemoryStore struct {
	mu       sync.Mutex
	bindings []stash.Binding
	mask     stash.CellMask
	names    []string
	batches  []stash.BatchRecord
}

// NewMemoryStore seeds a store with existing state.
func NewMemoryStore(bindings []stash.Binding, mask stash.CellMask, names []string) *MemoryStore {
	return &MemoryStore{bindings: slices.Clone(bindings), mask: mask, names: slices.Clone(names)}
}

func (m *MemoryStore) LoadBindings(context.Context) ([]stash.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bindings), nil
}

// SaveBindings upserts by identity.
func (m *MemoryStore) SaveBindings(_ context.Context, bindings []stash.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bindings {
		i := slices.IndexFunc(m.bindings, func(x stash.Binding) bool { return x.Identity == b.Identity })
		if i >= 0 {
			m.bindings[i] = b
		} else {
			m.bindings = append(m.bindings, b)
		}
	}
	return nil
}

// ReplaceBindings keeps only the listed bindings, updating retained ones in
// place and appending new ones.
func (m *MemoryStore) ReplaceBindings(_ context.Context, bindings []stash.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]stash.Binding, 0, len(bindings))
	for _, old := range m.bindings {
		if i := slices.IndexFunc(bindings, func(b stash.Binding) bool { return b.Identity == old.Identity }); i >= 0 {
			next = append(next, bindings[i])
		}
	}
	for _, b := range bindings {
		if !slices.ContainsFunc(next, func(x stash.Binding) bool { return x.Identity == b.Identity }) {
			next = append(next, b)
		}
	}
	m.bindings = next
	return nil
}

func (m *MemoryStore) LoadIgnoredCells(context.Context) (stash.CellMask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mask, nil
}

func (m *MemoryStore) SaveIgnoredCells(_ context.Context, mask stash.CellMask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mask = mask
	return nil
}

func (m *MemoryStore) LoadContainerNames(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.names), nil
}

func (m *MemoryStore) SaveContainerNames(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = slices.Clone(names)
	return nil
}

func (m *MemoryStore) RecordBatch(_ context.Context, rec stash.BatchRecord) (stash.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, rec)
	return rec, nil
}

// Batches returns the recorded history in order.
func (m *MemoryStore) Batches() []stash.BatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.batches)
}
