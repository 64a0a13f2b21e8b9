package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/chunker"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/extract"
	"github.com/poiesic/querysafe/snapshot"
	"github.com/poiesic/querysafe/storage"
)

const (
	DefaultBatchSize     = 32
	DefaultMaxInputChars = ai.DefaultMaxInputChars
	DefaultMaxAttempts   = 3
	DefaultBaseDelay     = 500 * time.Millisecond
)

// Stores groups the persistence a Coordinator reads and writes.
type Stores struct {
	Documents storage.DocumentRepository
	Tenants   storage.TenantRepository
	Blobs     storage.BlobStore
	Artifacts storage.ArtifactStore
}

// tenantRun tracks the single run owner of one tenant.
type tenantRun struct {
	mu      sync.Mutex
	running bool
	rerun   bool
	idle    chan struct{} // closed when running becomes false
}

// Coordinator schedules and executes ingestion runs.
type Coordinator struct {
	documents storage.DocumentRepository
	tenants   storage.TenantRepository
	blobs     storage.BlobStore
	artifacts storage.ArtifactStore
	registry  *snapshot.Registry
	embedder  ai.Embedder

	extractor     Extractor
	chunker       *chunker.Chunker
	processors    []processor
	runPool       *ants.Pool
	extractPool   *ants.Pool
	runPoolSize   int
	poolSize      int
	batchSize     int
	maxInputChars int
	maxAttempts   int
	baseDelay     time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	runs   map[core.TenantID]*tenantRun
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithPoolSize sets the worker pool size for concurrent document extraction.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *Coordinator) error {
		c.poolSize = max(size, 1)
		return nil
	}
}

// WithRunPoolSize sets how many tenants may run at the same time.
// Default is runtime.NumCPU(), with a minimum of 2.
func WithRunPoolSize(size int) Option {
	return func(c *Coordinator) error {
		c.runPoolSize = max(size, 1)
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(size int) Option {
	return func(c *Coordinator) error {
		c.batchSize = max(size, 1)
		return nil
	}
}

// WithMaxInputChars sets the longest chunk, in runes, accepted by the embedder.
func WithMaxInputChars(n int) Option {
	return func(c *Coordinator) error {
		c.maxInputChars = n
		return nil
	}
}

// WithRetry sets the attempts and initial backoff for embedding batches.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Coordinator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		return nil
	}
}

// WithExtractor replaces the default document extractor.
func WithExtractor(extractor Extractor) Option {
	return func(c *Coordinator) error {
		c.extractor = extractor
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(ch *chunker.Chunker) Option {
	return func(c *Coordinator) error {
		c.chunker = ch
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a Coordinator. The provider's embedder is used for
// every run; its captioner backs the default extractor.
func NewCoordinator(stores Stores, registry *snapshot.Registry, provider ai.AIProvider, opts ...Option) (*Coordinator, error) {
	switch {
	case stores.Documents == nil:
		return nil, ErrDocumentRepositoryRequired
	case stores.Tenants == nil:
		return nil, ErrTenantRepositoryRequired
	case stores.Blobs == nil:
		return nil, ErrBlobStoreRequired
	case stores.Artifacts == nil:
		return nil, ErrArtifactStoreRequired
	case registry == nil:
		return nil, ErrRegistryRequired
	case provider == nil:
		return nil, ErrAIProviderRequired
	}

	c := &Coordinator{
		documents:     stores.Documents,
		tenants:       stores.Tenants,
		blobs:         stores.Blobs,
		artifacts:     stores.Artifacts,
		registry:      registry,
		embedder:      provider.Embedder(),
		runPoolSize:   max(runtime.NumCPU(), 2),
		poolSize:      max(runtime.NumCPU()/2, 1),
		batchSize:     DefaultBatchSize,
		maxInputChars: DefaultMaxInputChars,
		maxAttempts:   DefaultMaxAttempts,
		baseDelay:     DefaultBaseDelay,
		logger:        slog.Default(),
		runs:          make(map[core.TenantID]*tenantRun),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.embedder == nil {
		return nil, ErrAIProviderRequired
	}
	c.logger = c.logger.With("component", "ingestion")

	if c.extractor == nil {
		ex, err := extract.New(
			extract.WithCaptioner(provider.Captioner()),
			extract.WithPageRenderer(extract.NewPopplerRenderer()),
			extract.WithLogger(c.logger),
		)
		if err != nil {
			return nil, err
		}
		c.extractor = ex
	}
	if c.chunker == nil {
		ch, err := chunker.New()
		if err != nil {
			return nil, err
		}
		c.chunker = ch
	}

	runPool, err := ants.NewPool(c.runPoolSize)
	if err != nil {
		return nil, err
	}
	extractPool, err := ants.NewPool(c.poolSize)
	if err != nil {
		runPool.Release()
		return nil, err
	}
	c.runPool = runPool
	c.extractPool = extractPool

	c.processors = []processor{
		&extractionProcessor{blobs: c.blobs, extractor: c.extractor, pool: c.extractPool},
		&chunkingProcessor{chunker: c.chunker},
		&embeddingProcessor{
			embedder:      c.embedder,
			batchSize:     c.batchSize,
			maxInputChars: c.maxInputChars,
			maxAttempts:   c.maxAttempts,
			baseDelay:     c.baseDelay,
		},
		&indexProcessor{artifacts: c.artifacts, modelTag: c.embedder.Model()},
	}
	return c, nil
}

func (c *Coordinator) runFor(tenant core.TenantID) *tenantRun {
	tr, ok := c.runs[tenant]
	if !ok {
		tr = &tenantRun{}
		c.runs[tenant] = tr
	}
	return tr
}

// Schedule requests a rebuild of tenant and returns without waiting for it.
// If a run is in flight another run is queued to follow it; any number of
// requests made during one run produce a single follow-up run. Schedule
// blocks only while every run worker is busy.
func (c *Coordinator) Schedule(ctx context.Context, tenant core.TenantID) error {
	if err := core.ValidateTenantID(tenant); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	tr := c.runFor(tenant)
	c.wg.Add(1)
	c.mu.Unlock()

	tr.mu.Lock()
	if tr.running {
		tr.rerun = true
		tr.mu.Unlock()
		c.wg.Done()
		c.logger.Debug("run in progress, coalescing", "tenant", tenant)
		return nil
	}
	tr.running = true
	tr.idle = make(chan struct{})
	tr.mu.Unlock()

	if err := c.markTraining(ctx, tenant); err != nil {
		c.abandon(tr)
		c.wg.Done()
		return err
	}

	err := c.runPool.Submit(func() {
		defer c.wg.Done()
		c.loop(tenant, tr)
	})
	if err != nil {
		c.abandon(tr)
		c.wg.Done()
		return fmt.Errorf("submit run: %w", err)
	}
	return nil
}

// loop executes runs for tenant until no rerun is pending.
func (c *Coordinator) loop(tenant core.TenantID, tr *tenantRun) {
	for {
		c.execute(tenant)

		tr.mu.Lock()
		if tr.rerun {
			tr.rerun = false
			tr.mu.Unlock()
			continue
		}
		tr.running = false
		close(tr.idle)
		tr.mu.Unlock()
		return
	}
}

func (c *Coordinator) abandon(tr *tenantRun) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.running = false
	tr.rerun = false
	close(tr.idle)
}

// markTraining records that a run for tenant is in flight.
func (c *Coordinator) markTraining(ctx context.Context, tenant core.TenantID) error {
	state, err := c.loadState(ctx, tenant)
	if err != nil {
		return err
	}
	state.Status = core.StatusTraining
	state.Running = true
	return c.tenants.SaveTenantState(ctx, state)
}

// execute performs one run. Its outcome is recorded in the tenant state.
func (c *Coordinator) execute(tenant core.TenantID) {
	ctx := context.Background()
	logger := c.logger.With("tenant", tenant)
	start := time.Now()

	var state *core.TenantState
	err := retryWithBackoff(ctx, logger, func() error {
		var err error
		state, err = c.loadState(ctx, tenant)
		return err
	}, c.maxAttempts, c.baseDelay)
	if err != nil {
		logger.Error("error loading tenant state", "err", err)
		c.recordFailure(ctx, logger, c.publishedState(ctx, tenant), fmt.Errorf("load tenant state: %w", err))
		return
	}
	state.Status = core.StatusTraining
	state.Running = true
	if err := c.saveState(ctx, logger, state); err != nil {
		logger.Error("error saving tenant state", "err", err)
	}
	prev := *state

	r := &run{
		tenant:     tenant,
		generation: c.nextGeneration(ctx, state),
		logger:     logger,
	}
	logger.Info("starting ingestion run", "generation", r.generation)

	r.documents, err = c.documents.ListDocuments(ctx, tenant)
	if err == nil {
		for _, p := range c.processors {
			if err = p.process(ctx, r); err != nil {
				logger.Debug("stage failed", "stage", p.name(), "err", err)
				break
			}
		}
	}

	state.FailedDocuments = r.failed
	if err != nil {
		c.recordFailure(ctx, logger, state, err)
		logger.Error("ingestion run failed", "generation", r.generation, "err", err)
		return
	}

	state.Running = false
	state.Status = core.StatusReady
	state.Generation = r.generation
	state.ModelTag = r.index.ModelTag()
	state.ChunkCount = r.index.Size()
	state.Dimension = r.index.Dim()
	state.LastError = ""
	if err := c.saveState(ctx, logger, state); err != nil {
		// The stored state must never trail the published generation. The
		// written artifacts no longer match the stored generation, so Recover
		// rebuilds the tenant.
		prev.FailedDocuments = r.failed
		c.recordFailure(ctx, logger, &prev, fmt.Errorf("save tenant state: %w", err))
		logger.Error("ingestion run not published", "generation", r.generation, "err", err)
		return
	}

	c.registry.Swap(tenant, r.snapshot)
	logger.Info("ingestion run complete",
		"generation", r.generation,
		"documents", len(r.documents),
		"failed", len(r.failed),
		"chunks", len(r.chunks),
		"elapsed", time.Since(start))
}

// saveState persists state, retrying with the embedding backoff.
func (c *Coordinator) saveState(ctx context.Context, logger *slog.Logger, state *core.TenantState) error {
	return retryWithBackoff(ctx, logger, func() error {
		return c.tenants.SaveTenantState(ctx, state)
	}, c.maxAttempts, c.baseDelay)
}

// recordFailure marks state failed with cause and persists it.
func (c *Coordinator) recordFailure(ctx context.Context, logger *slog.Logger, state *core.TenantState, cause error) {
	state.Status = core.StatusFailed
	state.Running = false
	state.LastError = cause.Error()
	if err := c.saveState(ctx, logger, state); err != nil {
		logger.Error("error recording failed run", "err", err)
	}
}

// publishedState describes tenant from its published snapshot. It stands in
// for the stored state when that cannot be read.
func (c *Coordinator) publishedState(ctx context.Context, tenant core.TenantID) *core.TenantState {
	state := &core.TenantState{Tenant: tenant}
	if snap := c.registry.Current(ctx, tenant); snap != nil {
		state.Generation = snap.Generation
		state.ModelTag = snap.ModelTag()
		state.ChunkCount = snap.Index.Size()
		state.Dimension = snap.Index.Dim()
	}
	return state
}

// nextGeneration returns a generation above both the recorded and the
// published one.
func (c *Coordinator) nextGeneration(ctx context.Context, state *core.TenantState) uint64 {
	gen := state.Generation
	if snap := c.registry.Current(ctx, state.Tenant); snap != nil && snap.Generation > gen {
		gen = snap.Generation
	}
	return gen + 1
}

func (c *Coordinator) loadState(ctx context.Context, tenant core.TenantID) (*core.TenantState, error) {
	state, err := c.tenants.LoadTenantState(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &core.TenantState{Tenant: tenant, Status: core.StatusTraining}
	}
	return state, nil
}

// Status returns the lifecycle status of tenant. A tenant never seen before
// is training: it exists but has nothing to serve.
func (c *Coordinator) Status(ctx context.Context, tenant core.TenantID) (core.Status, error) {
	state, err := c.State(ctx, tenant)
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

// State returns the durable state of tenant.
func (c *Coordinator) State(ctx context.Context, tenant core.TenantID) (*core.TenantState, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return c.loadState(ctx, tenant)
}

// Running reports whether a run for tenant is in flight or queued.
func (c *Coordinator) Running(tenant core.TenantID) bool {
	c.mu.Lock()
	tr, ok := c.runs[tenant]
	c.mu.Unlock()
	if !ok {
		return false
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.running
}

// Wait blocks until tenant has no run in flight or queued.
func (c *Coordinator) Wait(ctx context.Context, tenant core.TenantID) error {
	c.mu.Lock()
	tr, ok := c.runs[tenant]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	tr.mu.Lock()
	if !tr.running {
		tr.mu.Unlock()
		return nil
	}
	idle := tr.idle
	tr.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tenants returns the state of every tenant that has documents or a recorded
// state, ordered by tenant.
func (c *Coordinator) Tenants(ctx context.Context) ([]*core.TenantState, error) {
	states, err := c.tenants.ListTenantStates(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[core.TenantID]bool, len(states))
	for _, s := range states {
		known[s.Tenant] = true
	}

	withDocs, err := c.documents.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	for _, tenant := range withDocs {
		if !known[tenant] {
			states = append(states, &core.TenantState{Tenant: tenant, Status: core.StatusTraining})
		}
	}

	slices.SortFunc(states, func(a, b *core.TenantState) int {
		switch {
		case a.Tenant < b.Tenant:
			return -1
		case a.Tenant > b.Tenant:
			return 1
		}
		return 0
	})
	return states, nil
}

// Recover schedules a rebuild for every tenant whose last run was
// interrupted, that was never indexed, or whose artifacts are missing,
// inconsistent or built with a different embedding model. It returns the
// tenants scheduled.
func (c *Coordinator) Recover(ctx context.Context) ([]core.TenantID, error) {
	states, err := c.Tenants(ctx)
	if err != nil {
		return nil, err
	}

	var scheduled []core.TenantID
	var errs []error
	for _, state := range states {
		reason := c.recoveryReason(ctx, state)
		if reason == "" {
			continue
		}
		c.logger.Info("scheduling rebuild", "tenant", state.Tenant, "reason", reason)
		if err := c.Schedule(ctx, state.Tenant); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", state.Tenant, err))
			continue
		}
		scheduled = append(scheduled, state.Tenant)
	}
	return scheduled, errors.Join(errs...)
}

func (c *Coordinator) recoveryReason(ctx context.Context, state *core.TenantState) string {
	if state.Running {
		return "interrupted run"
	}
	if !state.Indexed() {
		if state.Status == core.StatusFailed {
			return ""
		}
		return "never indexed"
	}

	snap, err := c.registry.Load(ctx, state.Tenant)
	if err != nil {
		return fmt.Sprintf("artifacts unusable: %v", err)
	}
	if snap.ModelTag() != c.embedder.Model() {
		return fmt.Sprintf("embedding model changed from %q to %q", snap.ModelTag(), c.embedder.Model())
	}
	if snap.Generation != state.Generation {
		return fmt.Sprintf("artifacts hold generation %d, state records %d", snap.Generation, state.Generation)
	}
	return ""
}

// Purge removes everything ingestion holds for tenant: its documents and
// their blobs, the published artifacts and snapshot, and the stored state.
// Fails with ErrRunInProgress while a run is in flight or queued.
func (c *Coordinator) Purge(ctx context.Context, tenant core.TenantID) error {
	if err := core.ValidateTenantID(tenant); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	tr := c.runFor(tenant)
	c.mu.Unlock()

	tr.mu.Lock()
	if tr.running {
		tr.mu.Unlock()
		return ErrRunInProgress
	}
	tr.running = true
	tr.idle = make(chan struct{})
	tr.mu.Unlock()
	defer c.abandon(tr)

	logger := c.logger.With("tenant", tenant)
	if err := c.artifacts.DeleteArtifacts(ctx, tenant); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	c.registry.Drop(tenant)

	docs, err := c.documents.ListDocuments(ctx, tenant)
	if err != nil {
		return err
	}
	ids := make([]core.ID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.Id
	}
	if len(ids) > 0 {
		if err := c.documents.DeleteDocuments(ctx, tenant, ids...); err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
	}
	for _, doc := range docs {
		if err := c.blobs.DeleteBlob(ctx, tenant, doc.BlobKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("error deleting blob", "document", doc.Id, "err", err)
		}
	}

	if err := c.tenants.DeleteTenantState(ctx, tenant); err != nil {
		return fmt.Errorf("delete tenant state: %w", err)
	}
	logger.Info("purged tenant", "documents", len(docs))
	return nil
}

// Close stops accepting runs and waits for in-flight and queued runs to
// finish.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	c.runPool.Release()
	c.extractPool.Release()
	return nil
}
