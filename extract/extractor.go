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


// Package extract turns uploaded documents into ordered content units.
//
// Each supported format has its own handler. A handler yields one unit per
// logical page; a page that fails is skipped with a warning and the rest of
// the document continues. Pages that carry no machine-readable text (scanned
// PDF pages, images) are described by an ai.Captioner instead.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/core"
)

// page is the text of one logical page and how it was obtained.
type page struct {
	text   string
	source core.UnitSource
}

// Extractor dispatches documents to the handler for their format.
type Extractor struct {
	captioner ai.Captioner
	renderer  PageRenderer
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithCaptioner enables image documents and the caption fallback for PDF
// pages without text.
func WithCaptioner(captioner ai.Captioner) Option {
	return func(e *Extractor) error {
		e.captioner = captioner
		return nil
	}
}

// WithPageRenderer sets the renderer used to rasterise text-less PDF pages.
func WithPageRenderer(renderer PageRenderer) Option {
	return func(e *Extractor) error {
		e.renderer = renderer
		return nil
	}
}

// WithLogger sets the logger used by the extractor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		e.logger = logger
		return nil
	}
}

// New creates an Extractor.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// Extract returns the content units of doc in page order. Any failure that
// prevents the document from yielding at least one unit is returned as a
// *core.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, doc *core.Document, data []byte) (units []core.ContentUnit, err error) {
	fail := func(cause error) error {
		return &core.ExtractionError{DocumentId: doc.Id, Name: doc.Name, Err: cause}
	}

	// Parsers of untrusted input may panic on malformed files.
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = fail(fmt.Errorf("parser panic: %v", r))
		}
	}()

	logger := e.logger.With("tenant", doc.Tenant, "document", doc.Name)

	var pages []page
	format := Detect(doc.Name, doc.MimeType, data)
	switch format {
	case FormatPDF:
		pages, err = e.extractPDF(ctx, logger, data)
	case FormatText, FormatMarkdown:
		pages, err = extractText(ctx, data)
	case FormatHTML:
		pages, err = extractHTML(ctx, data)
	case FormatDOCX:
		pages, err = extractDOCX(data)
	case FormatImage:
		pages, err = e.extractImage(ctx, data, ImageMimeType(doc.Name, doc.MimeType, data))
	default:
		err = core.ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fail(err)
	}

	units = make([]core.ContentUnit, 0, len(pages))
	for _, p := range pages {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		units = append(units, core.ContentUnit{
			Tenant:     doc.Tenant,
			DocumentId: doc.Id,
			Sequence:   len(units),
			Source:     p.source,
			Text:       text,
		})
	}
	if len(units) == 0 {
		return nil, fail(core.ErrNoContent)
	}

	logger.Debug("extracted document", "format", format, "pages", len(pages), "units", len(units))
	return units, nil
}

func (e *Extractor) extractImage(ctx context.Context, data []byte, mimeType string) ([]page, error) {
	if e.captioner == nil {
		return nil, fmt.Errorf("%w: no captioner configured for images", core.ErrUnsupportedFormat)
	}
	caption, err := e.captioner.Caption(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("caption image: %w", err)
	}
	return []page{{text: caption, source: core.SourceCaption}}, nil
}
