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


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/ingestion"
)

// Config holds configuration for a migration.
type Config struct {
	// All rebuilds every known tenant, not only those on another model.
	All bool
	// Timeout bounds the wait for a single tenant's rebuild. Zero waits
	// as long as the context allows.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Minute,
	}
}

// Reembedder rebuilds tenants whose published index was produced by a
// different embedding model than the one currently configured.
type Reembedder struct {
	coordinator *ingestion.Coordinator
	model       string
	config      *Config
	progress    io.Writer
}

// NewReembedder creates a Reembedder that migrates tenants to embedder's
// model. Progress is written to progress.
func NewReembedder(coordinator *ingestion.Coordinator, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if coordinator == nil {
		return nil, ErrCoordinatorRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reembedder{
		coordinator: coordinator,
		model:       embedder.Model(),
		config:      config,
		progress:    progress,
	}, nil
}

// Stale returns the tenants that need rebuilding: those indexed with a
// model other than the current one, or every tenant when Config.All is set.
func (r *Reembedder) Stale(ctx context.Context) ([]core.TenantID, error) {
	states, err := r.coordinator.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	var stale []core.TenantID
	for _, state := range states {
		if r.config.All || (state.Indexed() && state.ModelTag != r.model) {
			stale = append(stale, state.Tenant)
		}
	}
	return stale, nil
}

// Run schedules a rebuild of every stale tenant and waits for each to
// finish. Rebuilds run concurrently up to the coordinator's run pool size.
// It returns ErrRebuildFailed when any tenant did not end ready on the
// current model; those tenants keep serving their previous generation.
func (r *Reembedder) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tenants, err := r.Stale(ctx)
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		fmt.Fprintf(r.progress, "All tenants are indexed with %s\n", r.model)
		return nil
	}

	fmt.Fprintf(r.progress, "Rebuilding %d tenants with %s\n", len(tenants), r.model)

	tracker := NewProgressTracker(r.progress, len(tenants))
	tracker.Start()

	var failed []core.TenantID
	scheduled := make([]core.TenantID, 0, len(tenants))
	for _, tenant := range tenants {
		if err := r.coordinator.Schedule(ctx, tenant); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tracker.Record(false)
			failed = append(failed, tenant)
			continue
		}
		scheduled = append(scheduled, tenant)
	}

	for _, tenant := range scheduled {
		ok, err := r.await(ctx, tenant)
		if err != nil {
			return err
		}
		tracker.Record(ok)
		if !ok {
			failed = append(failed, tenant)
		}
	}
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Rebuild complete. %d of %d tenants migrated in %v\n",
		len(tenants)-len(failed), len(tenants), elapsed.Round(time.Millisecond))

	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", ErrRebuildFailed, failed)
	}
	return nil
}

// await waits for tenant's rebuild and reports whether it is now ready on
// the current model.
func (r *Reembedder) await(ctx context.Context, tenant core.TenantID) (bool, error) {
	waitCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}
	if err := r.coordinator.Wait(waitCtx, tenant); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}

	state, err := r.coordinator.State(ctx, tenant)
	if err != nil {
		return false, fmt.Errorf("failed to read state of %s: %w", tenant, err)
	}
	if state.Status != core.StatusReady || state.ModelTag != r.model {
		if state.LastError != "" {
			fmt.Fprintf(r.progress, "\n%s: %s\n", tenant, state.LastError)
		}
		return false, nil
	}
	return true, nil
}
