package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/poiesic/querysafe/core"
	"github.com/tmc/langchaingo/documentloaders"
)

// formFeed separates logical pages in plain text.
const formFeed = "\f"

// extractText loads plain text or markdown. Form feeds delimit pages.
func extractText(ctx context.Context, data []byte) ([]page, error) {
	docs, err := documentloaders.NewText(bytes.NewReader(bytes.ToValidUTF8(data, []byte("�")))).Load(ctx)
	if err != nil {
		return nil, err
	}

	var pages []page
	for _, doc := range docs {
		for _, part := range strings.Split(doc.PageContent, formFeed) {
			pages = append(pages, page{text: part, source: core.SourceText})
		}
	}
	return pages, nil
}

// extractHTML loads the visible text of an HTML document as a single page.
func extractHTML(ctx context.Context, data []byte) ([]page, error) {
	docs, err := documentloaders.NewHTML(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, err
	}

	pages := make([]page, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, page{text: doc.PageContent, source: core.SourceText})
	}
	return pages, nil
}
