package schemacache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nrjais/basestore/internal/config"
	"github.com/nrjais/basestore/internal/db"
)

// Manager caches the field list of each base. Entries are loaded on first
// use, dropped when the schema changes in this process, and flushed
// periodically so changes made by other instances become visible.
type Manager struct {
	repo            db.SchemaRepository
	refreshInterval time.Duration
	mu              sync.RWMutex
	bases           map[string][]db.Field
	gens            map[string]uint64
	epoch           uint64
	stopCh          chan struct{}
	stopOnce        sync.Once
}

func NewManager(repo db.SchemaRepository, cfg *config.Config) *Manager {
	interval := time.Duration(cfg.SchemaCacheOptions.RefreshIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
		slog.Warn("Invalid schema cache refresh interval, using default",
			"configured", cfg.SchemaCacheOptions.RefreshIntervalSecs, "default", interval)
	}
	return &Manager{
		repo:            repo,
		refreshInterval: interval,
		bases:           make(map[string][]db.Field),
		gens:            make(map[string]uint64),
		stopCh:          make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Schema cache flush loop started", "interval", m.refreshInterval)
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Flush()
			case <-m.stopCh:
				slog.Info("Schema cache received stop signal, flush loop exiting")
				return
			case <-ctx.Done():
				slog.Info("Schema cache context cancelled, flush loop exiting")
				return
			}
		}
	}()
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) Flush() {
	m.mu.Lock()
	n := len(m.bases)
	m.bases = make(map[string][]db.Field)
	m.epoch++
	m.mu.Unlock()
	slog.Debug("Schema cache flushed", "entries", n)
}

func (m *Manager) Invalidate(baseID string) {
	m.mu.Lock()
	delete(m.bases, baseID)
	m.gens[baseID]++
	m.mu.Unlock()
}

func (m *Manager) cached(baseID string) ([]db.Field, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields, ok := m.bases[baseID]
	return fields, ok
}

// load reads the fields of a base and caches them unless the base was
// invalidated or the cache flushed while the read was in flight.
func (m *Manager) load(ctx context.Context, baseID string) ([]db.Field, error) {
	m.mu.RLock()
	epoch, gen := m.epoch, m.gens[baseID]
	m.mu.RUnlock()

	fields, err := m.repo.ListFields(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for base '%s': %w", baseID, err)
	}

	m.mu.Lock()
	if m.epoch == epoch && m.gens[baseID] == gen {
		m.bases[baseID] = fields
	} else {
		slog.Debug("Schema changed during load, not caching", "base_id", baseID)
	}
	m.mu.Unlock()
	return fields, nil
}

// Fields returns the cached field list of a base, loading it on a miss.
func (m *Manager) Fields(ctx context.Context, baseID string) ([]db.Field, error) {
	if fields, ok := m.cached(baseID); ok {
		return fields, nil
	}
	return m.load(ctx, baseID)
}

// FieldByName returns the first field of the base named name. A cached miss
// reloads the base once before giving up, so fields created by another
// instance resolve without waiting for the next flush.
func (m *Manager) FieldByName(ctx context.Context, baseID, name string) (db.Field, bool, error) {
	fields, err := m.Fields(ctx, baseID)
	if err != nil {
		return db.Field{}, false, err
	}
	if f, ok := firstNamed(fields, name); ok {
		return f, true, nil
	}

	fields, err = m.load(ctx, baseID)
	if err != nil {
		return db.Field{}, false, err
	}
	f, ok := firstNamed(fields, name)
	return f, ok, nil
}

func firstNamed(fields []db.Field, name string) (db.Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return db.Field{}, false
}
