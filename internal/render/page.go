// Package render turns parsed chapters into HTML pages, DOCX documents and
// structure diagrams.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/studyguide/internal/guide"
	"github.com/dgallion1/studyguide/internal/source"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

const (
	chapterTemplate = "chapter.html"
	indexTemplate   = "index.html"
	excerptRunes    = 200
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ChapterPage is the data passed to chapter.html.
type ChapterPage struct {
	GuideTitle   string
	Number       int
	Title        string
	Introduction template.HTML
	Sections     []SectionView
	Summary      template.HTML
	Keywords     []string
	Quiz         []QuizView
	Prev, Next   string
}

type SectionView struct {
	Heading string
	Content template.HTML
}

type QuizView struct {
	Question string
	Options  []OptionView
	Answer   string
}

type OptionView struct {
	Text    string
	Correct bool
}

// IndexPage is the data passed to index.html.
type IndexPage struct {
	GuideTitle string
	Chapters   []IndexEntry
}

type IndexEntry struct {
	Title   string
	Href    string
	Excerpt string
}

// Renderer executes the page templates. Templates found in the template
// directory replace the embedded defaults file by file.
type Renderer struct {
	chapter  *template.Template
	index    *template.Template
	assetDir string
}

func NewRenderer(templateDir, assetDir string) (*Renderer, error) {
	chapter, err := loadTemplate(templateDir, chapterTemplate)
	if err != nil {
		return nil, err
	}
	index, err := loadTemplate(templateDir, indexTemplate)
	if err != nil {
		return nil, err
	}
	return &Renderer{chapter: chapter, index: index, assetDir: assetDir}, nil
}

func loadTemplate(dir, name string) (*template.Template, error) {
	if dir != "" {
		path := filepath.Join(dir, name)
		src, err := os.ReadFile(path)
		switch {
		case err == nil:
			t, err := template.New(name).Parse(string(src))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", path, err)
			}
			return t, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
	}
	t, err := template.ParseFS(defaultTemplates, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse embedded template %s: %w", name, err)
	}
	return t, nil
}

// Markdown converts a Markdown fragment to HTML. Raw HTML in the input is
// not passed through.
func Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// NewChapterPage builds the template data for chapter number n (1-based).
func NewChapterPage(guideTitle string, n int, ch guide.Chapter) (ChapterPage, error) {
	page := ChapterPage{
		GuideTitle: guideTitle,
		Number:     n,
		Title:      ch.Title,
		Keywords:   ch.Keywords,
	}
	var err error
	if page.Introduction, err = Markdown(ch.Introduction); err != nil {
		return ChapterPage{}, err
	}
	if page.Summary, err = Markdown(ch.Summary); err != nil {
		return ChapterPage{}, err
	}
	for _, s := range ch.Sections {
		content, err := Markdown(s.Content)
		if err != nil {
			return ChapterPage{}, err
		}
		page.Sections = append(page.Sections, SectionView{Heading: s.Heading, Content: content})
	}
	for _, q := range ch.Quiz {
		qv := QuizView{Question: q.Question, Answer: q.CorrectAnswer}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, OptionView{Text: o, Correct: o == q.CorrectAnswer})
		}
		page.Quiz = append(page.Quiz, qv)
	}
	return page, nil
}

// Page renders one chapter as a standalone HTML page.
func (r *Renderer) Page(w io.Writer, guideTitle string, n int, ch guide.Chapter) error {
	page, err := NewChapterPage(guideTitle, n, ch)
	if err != nil {
		return err
	}
	return r.writePage(w, page)
}

func (r *Renderer) writePage(w io.Writer, page ChapterPage) error {
	if err := r.chapter.Execute(w, page); err != nil {
		return fmt.Errorf("execute %s: %w", chapterTemplate, err)
	}
	return nil
}

// Index renders the guide's table of contents.
func (r *Renderer) Index(w io.Writer, guideTitle string, chapters []guide.Chapter) error {
	page := IndexPage{GuideTitle: guideTitle}
	for i, ch := range chapters {
		excerpt, err := introExcerpt(ch.Introduction)
		if err != nil {
			return err
		}
		page.Chapters = append(page.Chapters, IndexEntry{
			Title:   ch.Title,
			Href:    ChapterFilename(i + 1),
			Excerpt: excerpt,
		})
	}
	if err := r.index.Execute(w, page); err != nil {
		return fmt.Errorf("execute %s: %w", indexTemplate, err)
	}
	return nil
}

// introExcerpt renders the introduction and keeps the first runes of its
// visible text.
func introExcerpt(intro string) (string, error) {
	rendered, err := Markdown(intro)
	if err != nil {
		return "", err
	}
	text, err := source.PlainText(string(rendered))
	if err != nil {
		return "", err
	}
	r := []rune(text)
	if len(r) <= excerptRunes {
		return text, nil
	}
	return string(r[:excerptRunes]) + "...", nil
}

// ChapterFilename is the site file name of chapter n (1-based).
func ChapterFilename(n int) string {
	return fmt.Sprintf("chapter-%02d.html", n)
}
