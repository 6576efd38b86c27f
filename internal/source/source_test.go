package source

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
)

func TestForFile(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"notes.txt", "*source.TextExtractor", true},
		{"README.MD", "*source.MarkdownExtractor", true},
		{"guide.markdown", "*source.MarkdownExtractor", true},
		{"page.htm", "*source.HTMLExtractor", true},
		{"paper.pdf", "*source.PDFExtractor", true},
		{"report.docx", "*source.DOCXExtractor", true},
		{"data.csv", "", false},
		{"noext", "", false},
	}
	for _, tc := range tests {
		ex, err := ForFile(tc.name, Options{})
		if !tc.ok {
			if err == nil {
				t.Errorf("%s: expected error", tc.name)
			}
			if IsSupported(tc.name) {
				t.Errorf("%s: expected unsupported", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got := typeName(ex); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
		if !IsSupported(tc.name) {
			t.Errorf("%s: expected supported", tc.name)
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TextExtractor:
		return "*source.TextExtractor"
	case *MarkdownExtractor:
		return "*source.MarkdownExtractor"
	case *HTMLExtractor:
		return "*source.HTMLExtractor"
	case *PDFExtractor:
		return "*source.PDFExtractor"
	case *DOCXExtractor:
		return "*source.DOCXExtractor"
	}
	return "unknown"
}

func TestTextExtractor_Paragraphs(t *testing.T) {
	input := "First paragraph\nstill first.\n\n\n  \nSecond paragraph.\n"
	doc, err := Extract(strings.NewReader(input), "dir/notes.txt", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", doc.Title)
	}
	if len(doc.Passages) != 1 {
		t.Fatalf("expected one untitled passage, got %d", len(doc.Passages))
	}
	want := "First paragraph\nstill first.\n\nSecond paragraph."
	if doc.Passages[0].Text != want {
		t.Errorf("expected %q, got %q", want, doc.Passages[0].Text)
	}
}

func TestTextExtractor_Empty(t *testing.T) {
	doc, err := Extract(strings.NewReader(""), "empty.txt", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Passages) != 0 {
		t.Errorf("expected no passages, got %d", len(doc.Passages))
	}
}

func TestMarkdownExtractor_Headings(t *testing.T) {
	input := "# Concurrency Primer\n\nIntro text.\n\n## Goroutines\n\nCheap *threads*.\n\n- first\n- second\n\n```go\ngo f()\n```\n\n## Channels\n\nTyped `pipes`.\n"
	doc, err := Extract(strings.NewReader(input), "primer.md", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Concurrency Primer" {
		t.Errorf("expected h1 as title, got %q", doc.Title)
	}
	if len(doc.Passages) != 3 {
		t.Fatalf("expected 3 passages, got %d: %+v", len(doc.Passages), doc.Passages)
	}
	if doc.Passages[0].Heading != "Concurrency Primer" || doc.Passages[0].Text != "Intro text." {
		t.Errorf("unexpected first passage %+v", doc.Passages[0])
	}
	gor := doc.Passages[1]
	if gor.Heading != "Goroutines" {
		t.Errorf("expected Goroutines heading, got %q", gor.Heading)
	}
	for _, want := range []string{"Cheap threads.", "- first\n- second", "go f()"} {
		if !strings.Contains(gor.Text, want) {
			t.Errorf("expected %q in %q", want, gor.Text)
		}
	}
	if doc.Passages[2].Text != "Typed pipes." {
		t.Errorf("expected inline code text kept, got %q", doc.Passages[2].Text)
	}
}

func TestMarkdownExtractor_NoHeadings(t *testing.T) {
	doc, err := Extract(strings.NewReader("Just some plain text.\n\nAnother line."), "plain.md", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "plain" {
		t.Errorf("expected filename title, got %q", doc.Title)
	}
	if len(doc.Passages) != 1 || doc.Passages[0].Heading != "" {
		t.Fatalf("expected one untitled passage, got %+v", doc.Passages)
	}
}

func TestHTMLExtractor(t *testing.T) {
	input := `<html><head><title>Go Notes</title><style>p{}</style></head>
<body><nav><p>menu</p></nav>
<p>Lead   paragraph.</p>
<h2>Slices</h2><p>Slices <b>grow</b>.</p><ul><li>append</li><li>copy</li></ul>
<script>alert(1)</script>
<h3>Maps</h3><p>Unordered.</p>
</body></html>`
	doc, err := Extract(strings.NewReader(input), "notes.html", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Go Notes" {
		t.Errorf("expected <title>, got %q", doc.Title)
	}
	if len(doc.Passages) != 3 {
		t.Fatalf("expected 3 passages, got %d: %+v", len(doc.Passages), doc.Passages)
	}
	if doc.Passages[0].Text != "Lead paragraph." {
		t.Errorf("unexpected lead passage %q", doc.Passages[0].Text)
	}
	if doc.Passages[1].Heading != "Slices" || doc.Passages[1].Text != "Slices grow.\n\nappend\n\ncopy" {
		t.Errorf("unexpected slices passage %+v", doc.Passages[1])
	}
	if strings.Contains(doc.Text(), "menu") || strings.Contains(doc.Text(), "alert") {
		t.Errorf("expected nav and script skipped, got %q", doc.Text())
	}
}

func TestPlainText(t *testing.T) {
	got, err := PlainText("<p>Asyncio <em>runs</em>\n coroutines.</p><p>Fast.</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Asyncio runs coroutines. Fast." {
		t.Errorf("unexpected plain text %q", got)
	}
}

func TestDOCXExtractor(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	addStyled(w, "Networking Basics", "Title")
	w.AddParagraph().AddText("Preface text.")
	addStyled(w, "Sockets", "Heading1")
	w.AddParagraph().AddText("A socket is an endpoint.")
	w.AddParagraph().AddText("It has an address.")
	w.AddParagraph()

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write docx: %v", err)
	}

	doc, err := Extract(&buf, "net.docx", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Networking Basics" {
		t.Errorf("expected Title-styled paragraph as title, got %q", doc.Title)
	}
	if len(doc.Passages) != 2 {
		t.Fatalf("expected 2 passages, got %+v", doc.Passages)
	}
	if doc.Passages[1].Heading != "Sockets" || doc.Passages[1].Text != "A socket is an endpoint.\n\nIt has an address." {
		t.Errorf("unexpected heading passage %+v", doc.Passages[1])
	}
}

func addStyled(w *docx.Docx, text, style string) {
	p := w.AddParagraph()
	p.AddText(text)
	if p.Properties == nil {
		p.Properties = &docx.ParagraphProperties{}
	}
	p.Properties.Style = &docx.Style{Val: style}
}

func TestPDFExtractor_InvalidInput(t *testing.T) {
	_, err := Extract(strings.NewReader("not a pdf"), "broken.pdf", Options{})
	if err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}

func TestIsHeadingStyle(t *testing.T) {
	for style, want := range map[string]bool{
		"Heading1":  true,
		"heading 3": true,
		"Heading7":  false,
		"Normal":    false,
		"Heading":   false,
	} {
		if got := isHeadingStyle(style); got != want {
			t.Errorf("%q: expected %v, got %v", style, want, got)
		}
	}
}
