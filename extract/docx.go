package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/querysafe/core"
)

const docxBodyPart = "word/document.xml"

// extractDOCX reads word/document.xml. Explicit page breaks delimit pages;
// paragraphs end with a newline.
func extractDOCX(data []byte) ([]page, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != docxBodyPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", docxBodyPart, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return nil, fmt.Errorf("%w: %s missing", core.ErrUnsupportedFormat, docxBodyPart)
}

// parseDocumentXML walks the WordprocessingML token stream.
func parseDocumentXML(r io.Reader) ([]page, error) {
	dec := xml.NewDecoder(r)

	var pages []page
	var cur strings.Builder
	flush := func() {
		pages = append(pages, page{text: cur.String(), source: core.SourceText})
		cur.Reset()
	}

	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxBodyPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				cur.WriteByte('\t')
			case "br":
				if isPageBreak(t) {
					flush()
				} else {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				cur.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	flush()
	return pages, nil
}

func isPageBreak(el xml.StartElement) bool {
	for _, attr := range el.Attr {
		if attr.Name.Local == "type" && attr.Value == "page" {
			return true
		}
	}
	return false
}
