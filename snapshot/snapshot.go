// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package snapshot publishes immutable (chunks, index) generations per tenant.
//
// Readers take the current Snapshot with a single atomic load and use it for
// the whole request. Ingestion publishes a new generation with Swap. A reader
// therefore never sees chunks of one generation paired with the index of
// another.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/index"
	"github.com/poiesic/querysafe/storage"
)

var (
	// ErrInconsistent indicates artifacts whose chunk count differs from the
	// index size.
	ErrInconsistent = errors.New("chunk count does not match index size")

	// ErrArtifactStoreRequired is returned when no artifact store is configured.
	ErrArtifactStoreRequired = errors.New("artifact store is required")
)

// Snapshot is one published generation. It is never mutated after creation.
type Snapshot struct {
	Generation uint64
	Chunks     []string
	Index      *index.Flat
}

// New validates the positional invariant and returns a Snapshot.
func New(chunks []string, idx *index.Flat) (*Snapshot, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil index", ErrInconsistent)
	}
	if len(chunks) != idx.Size() {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrInconsistent, len(chunks), idx.Size())
	}
	return &Snapshot{
		Generation: idx.Generation(),
		Chunks:     chunks,
		Index:      idx,
	}, nil
}

// ModelTag returns the embedding model the snapshot was built with.
func (s *Snapshot) ModelTag() string {
	return s.Index.ModelTag()
}

// slot holds the current snapshot of one tenant.
type slot struct {
	current atomic.Pointer[Snapshot]
	once    sync.Once
}

// Registry maps tenants to their current snapshot. Snapshots are loaded
// lazily from the artifact store on first access.
type Registry struct {
	artifacts storage.ArtifactStore
	logger    *slog.Logger

	mu    sync.Mutex
	slots map[core.TenantID]*slot
}

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets the logger used by the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// NewRegistry creates a registry backed by artifacts.
func NewRegistry(artifacts storage.ArtifactStore, opts ...Option) (*Registry, error) {
	if artifacts == nil {
		return nil, ErrArtifactStoreRequired
	}
	r := &Registry{
		artifacts: artifacts,
		slots:     make(map[core.TenantID]*slot),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "snapshot-registry")
	return r, nil
}

func (r *Registry) slotFor(tenant core.TenantID) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[tenant]
	if !ok {
		s = &slot{}
		r.slots[tenant] = s
	}
	return s
}

// Current returns the tenant's published snapshot, or nil if none exists.
// The first call for a tenant loads its artifacts from disk.
func (r *Registry) Current(ctx context.Context, tenant core.TenantID) *Snapshot {
	s := r.slotFor(tenant)
	s.once.Do(func() {
		snap, err := r.Load(ctx, tenant)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				r.logger.Warn("ignoring unusable artifacts", "tenant", tenant, "err", err)
			}
			return
		}
		// A Swap that ran before the first load wins.
		s.current.CompareAndSwap(nil, snap)
	})
	return s.current.Load()
}

// Swap publishes snap as the tenant's current generation.
func (r *Registry) Swap(tenant core.TenantID, snap *Snapshot) {
	s := r.slotFor(tenant)
	// Publishing counts as having loaded; never let a later lazy load
	// overwrite a newer generation.
	s.once.Do(func() {})
	old := s.current.Swap(snap)
	if old != nil {
		r.logger.Debug("published generation", "tenant", tenant, "generation", snap.Generation, "previous", old.Generation)
	} else {
		r.logger.Debug("published generation", "tenant", tenant, "generation", snap.Generation)
	}
}

// Drop forgets the tenant's snapshot.
func (r *Registry) Drop(tenant core.TenantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, tenant)
}

// Load reads and validates the tenant's artifacts without publishing them.
// Returns storage.ErrNotFound if the tenant has no artifacts.
func (r *Registry) Load(ctx context.Context, tenant core.TenantID) (*Snapshot, error) {
	chunks, data, err := r.artifacts.ReadArtifacts(ctx, tenant)
	if err != nil {
		return nil, err
	}
	idx, err := index.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrCorruptArtifact, err)
	}
	return New(chunks, idx)
}
