// Package source extracts plain text from reference documents uploaded to
// ground chapter generation.
package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Document is the extracted text of one reference file, in reading order.
type Document struct {
	Title    string
	Passages []Passage
}

// Passage is a run of text under the nearest preceding heading. Heading is
// empty for text that appears before any heading.
type Passage struct {
	Heading string
	Text    string
}

// Text joins all passages, headings included.
func (d *Document) Text() string {
	var sb strings.Builder
	for i, p := range d.Passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if p.Heading != "" {
			sb.WriteString(p.Heading)
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Extractor converts raw file bytes into a Document.
type Extractor interface {
	Extract(r io.Reader, filename string) (*Document, error)
}

type Options struct {
	PDFFallbackPdftotext bool
}

var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the extractor for a filename's extension.
func ForFile(filename string, opts Options) (Extractor, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".txt":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".pdf":
		return &PDFExtractor{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

func IsSupported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extract picks the extractor for filename and runs it.
func Extract(r io.Reader, filename string, opts Options) (*Document, error) {
	ex, err := ForFile(filename, opts)
	if err != nil {
		return nil, err
	}
	doc, err := ex.Extract(r, filename)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	return doc, nil
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// builder collects paragraphs under the current heading.
type builder struct {
	doc     *Document
	heading string
	paras   []string
}

func newBuilder(title string) *builder {
	return &builder{doc: &Document{Title: title}}
}

func (b *builder) addHeading(h string) {
	b.flush()
	b.heading = strings.TrimSpace(h)
}

func (b *builder) addText(t string) {
	if t = strings.TrimSpace(t); t != "" {
		b.paras = append(b.paras, t)
	}
}

func (b *builder) flush() {
	if len(b.paras) > 0 {
		b.doc.Passages = append(b.doc.Passages, Passage{Heading: b.heading, Text: strings.Join(b.paras, "\n\n")})
	}
	b.paras = nil
}

func (b *builder) done() *Document {
	b.flush()
	return b.doc
}
