package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps the latest snapshot per dataset in process memory.
// It is safe for concurrent use by multiple goroutines.
//
// If a TTL is configured, a background goroutine removes stale snapshots.
// Deployments with more than one serving instance should use RedisStore so
// every instance sees the same snapshots.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot

	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory snapshot store with no TTL. Snapshots
// are kept until replaced or deleted.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
	}
}

// NewMemoryStoreWithTTL creates an in-memory snapshot store that removes
// snapshots older than ttl. The cleanup goroutine wakes every
// cleanupInterval (one minute if <= 0) and must be stopped with Stop when
// the store is no longer needed.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		snapshots:     make(map[string]Snapshot),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine and blocks until it has
// exited. Calling Stop twice, or on a store without TTL, is a no-op.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for dataset, snapshot := range s.snapshots {
		if now.Sub(snapshot.GeneratedAt) > s.ttl {
			delete(s.snapshots, dataset)
		}
	}
}

// Put stores a snapshot for its dataset, replacing any existing one.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if !validDatasetName(snapshot.Dataset) {
		return fmt.Errorf("invalid dataset name %q", snapshot.Dataset)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.Dataset] = snapshot
	return nil
}

// GetLatest retrieves the most recent snapshot for a dataset. The second
// return value is false when no snapshot exists.
func (s *MemoryStore) GetLatest(ctx context.Context, dataset string) (Snapshot, bool, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, found := s.snapshots[dataset]
	return snapshot, found, nil
}

// Len returns the number of snapshots currently stored. Mostly useful for
// tests and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes a dataset's snapshot, reporting whether one existed.
func (s *MemoryStore) Delete(dataset string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.snapshots[dataset]
	delete(s.snapshots, dataset)
	return existed
}
