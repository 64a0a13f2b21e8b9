package extract

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Format is a supported document format.
type Format string

const (
	FormatUnknown  Format = "unknown"
	FormatPDF      Format = "pdf"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatImage    Format = "image"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var extensionFormats = map[string]Format{
	".pdf":      FormatPDF,
	".txt":      FormatText,
	".text":     FormatText,
	".csv":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".docx":     FormatDOCX,
	".png":      FormatImage,
	".jpg":      FormatImage,
	".jpeg":     FormatImage,
	".gif":      FormatImage,
	".webp":     FormatImage,
}

var mimeFormats = map[string]Format{
	"application/pdf": FormatPDF,
	"text/plain":      FormatText,
	"text/csv":        FormatText,
	"text/markdown":   FormatMarkdown,
	"text/html":       FormatHTML,
	docxMimeType:      FormatDOCX,
	"image/png":       FormatImage,
	"image/jpeg":      FormatImage,
	"image/gif":       FormatImage,
	"image/webp":      FormatImage,
}

// Detect picks the format of a document from its file extension, then its
// declared MIME type, then by sniffing the content.
func Detect(name, mimeType string, data []byte) Format {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return f
	}
	if f, ok := mimeFormats[baseMimeType(mimeType)]; ok {
		return f
	}
	if len(data) > 0 {
		if f, ok := mimeFormats[baseMimeType(http.DetectContentType(data))]; ok {
			return f
		}
	}
	return FormatUnknown
}

// ImageMimeType returns the MIME type to send with an image to a captioner.
func ImageMimeType(name, declared string, data []byte) string {
	if base := baseMimeType(declared); strings.HasPrefix(base, "image/") {
		return base
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); strings.HasPrefix(byExt, "image/") {
		return baseMimeType(byExt)
	}
	return baseMimeType(http.DetectContentType(data))
}

func baseMimeType(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return base
}
