package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
)

// Extractor converts one stored document into content units.
type Extractor interface {
	Extract(ctx context.Context, doc *core.Document, data []byte) ([]core.ContentUnit, error)
}

// extractionProcessor extracts every document of a run on a shared pool.
// A document that fails is recorded on the run and skipped.
type extractionProcessor struct {
	blobs     storage.BlobStore
	extractor Extractor
	pool      *ants.Pool
}

var _ processor = (*extractionProcessor)(nil)

func (p *extractionProcessor) name() string { return "extraction" }

func (p *extractionProcessor) process(ctx context.Context, r *run) error {
	units := make([][]core.ContentUnit, len(r.documents))
	errs := make([]error, len(r.documents))

	var wg sync.WaitGroup
	for i, doc := range r.documents {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			units[i], errs[i] = p.extract(ctx, doc)
		}
		if err := p.pool.Submit(task); err != nil {
			r.logger.Debug("extraction pool unavailable, extracting inline", "err", err)
			task()
		}
	}
	wg.Wait()

	var failures []error
	for i, doc := range r.documents {
		if errs[i] != nil {
			r.failed = append(r.failed, doc.Name)
			failures = append(failures, errs[i])
			continue
		}
		r.units = append(r.units, units[i]...)
	}
	if len(failures) > 0 {
		r.logger.Warn("skipped documents that failed extraction",
			"failed", len(failures), "documents", len(r.documents), "err", errors.Join(failures...))
	}
	r.logger.Debug("extracted documents", "documents", len(r.documents), "units", len(r.units))
	return nil
}

// extract returns the units of doc. Every error is an *core.ExtractionError.
func (p *extractionProcessor) extract(ctx context.Context, doc *core.Document) ([]core.ContentUnit, error) {
	data, err := p.blobs.GetBlob(ctx, doc.Tenant, doc.BlobKey)
	if err != nil {
		return nil, &core.ExtractionError{DocumentId: doc.Id, Name: doc.Name, Err: fmt.Errorf("read blob: %w", err)}
	}

	units, err := p.extractor.Extract(ctx, doc, data)
	if err != nil {
		var extractErr *core.ExtractionError
		if errors.As(err, &extractErr) {
			return nil, err
		}
		return nil, &core.ExtractionError{DocumentId: doc.Id, Name: doc.Name, Err: err}
	}
	return units, nil
}
