package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/studyguide/internal/guide"
)

// DOCX writes ch as a Word document. Markdown in the body text is kept
// as-is; paragraphs are split on blank lines.
func DOCX(w io.Writer, ch guide.Chapter) error {
	doc := docx.New().WithDefaultTheme()

	styled(doc, ch.Title, "Title").Size("40").Bold()

	heading(doc, "Introduction")
	paragraphs(doc, ch.Introduction)

	for _, s := range ch.Sections {
		heading(doc, s.Heading)
		paragraphs(doc, s.Content)
	}

	heading(doc, "Summary")
	paragraphs(doc, ch.Summary)

	if len(ch.Keywords) > 0 {
		heading(doc, "Keywords")
		doc.AddParagraph().AddText(strings.Join(ch.Keywords, ", ")).Italic()
	}

	heading(doc, "Quiz")
	for i, q := range ch.Quiz {
		doc.AddParagraph().AddText(fmt.Sprintf("%d. %s", i+1, q.Question)).Bold()
		for j, o := range q.Options {
			doc.AddParagraph().AddText(fmt.Sprintf("    %c) %s", 'a'+rune(j%26), o))
		}
		doc.AddParagraph().AddText("Correct answer: " + q.CorrectAnswer).Italic()
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

func heading(doc *docx.Docx, text string) {
	styled(doc, text, "Heading1").Size("32").Bold()
}

// styled adds a paragraph carrying a named paragraph style and returns its run.
func styled(doc *docx.Docx, text, style string) *docx.Run {
	p := doc.AddParagraph()
	if p.Properties == nil {
		p.Properties = &docx.ParagraphProperties{}
	}
	p.Properties.Style = &docx.Style{Val: style}
	return p.AddText(text)
}

func paragraphs(doc *docx.Docx, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			doc.AddParagraph().AddText(para)
		}
	}
}
