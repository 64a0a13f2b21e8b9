package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/querysafe/core"
)

// extractPDF reads the text of every page. Pages without text are rendered
// and captioned when a renderer and captioner are configured.
func (e *Extractor) extractPDF(ctx context.Context, logger *slog.Logger, data []byte) ([]page, error) {
	texts, err := pdfPageTexts(logger, data)
	if err != nil {
		return nil, err
	}
	return e.fillBlankPages(ctx, logger, data, texts), nil
}

// pdfPageTexts returns the plain text of each page, in page order. A page
// that cannot be decoded yields "".
func pdfPageTexts(logger *slog.Logger, data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	count := reader.NumPage()
	texts := make([]string, count)
	for i := 1; i <= count; i++ {
		text, err := pdfPageText(reader, i)
		if err != nil {
			logger.Warn("skipping unreadable page", "page", i, "err", err)
			continue
		}
		texts[i-1] = strings.TrimSpace(text)
	}
	return texts, nil
}

// pdfPageText decodes one page, converting a parser panic into an error so
// that one bad page does not abandon the document.
func pdfPageText(reader *pdf.Reader, number int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: parser panic: %v", number, r)
		}
	}()

	p := reader.Page(number)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// fillBlankPages converts texts into pages, captioning blank ones when possible.
func (e *Extractor) fillBlankPages(ctx context.Context, logger *slog.Logger, data []byte, texts []string) []page {
	pages := make([]page, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			pages = append(pages, page{text: text, source: core.SourceText})
			continue
		}
		if e.renderer == nil || e.captioner == nil {
			continue
		}

		number := i + 1
		image, err := e.renderer.RenderPage(ctx, data, number)
		if err != nil {
			logger.Warn("skipping page that could not be rendered", "page", number, "err", err)
			continue
		}
		caption, err := e.captioner.Caption(ctx, image, "image/png")
		if err != nil {
			logger.Warn("skipping page that could not be captioned", "page", number, "err", err)
			continue
		}
		pages = append(pages, page{text: caption, source: core.SourceCaption})
	}
	return pages
}
