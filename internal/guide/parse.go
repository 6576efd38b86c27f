package guide

import (
	"strings"

	"github.com/dgallion1/studyguide/internal/logger"
)

type blockState int

const (
	stateNone blockState = iota
	stateIntroduction
	stateSection
	stateSummary
	stateKeywords
	stateQuiz
)

// block is the body of one labelled region of the source.
type block struct {
	found  bool
	inline string // text after the label on the label line
	lines  []line
}

type sectionBlock struct {
	heading string
	lines   []line
}

// document is the block-level view of the source text.
type document struct {
	titleFound bool
	title      string

	introduction block
	sections     []sectionBlock
	summary      block
	keywords     block
	quiz         block
}

var labelStates = map[string]blockState{
	labelIntroduction: stateIntroduction,
	labelSummary:      stateSummary,
	labelKeywords:     stateKeywords,
	labelQuiz:         stateQuiz,
}

// scan walks the tokens once, assigning content lines to the block that is
// open. Each label opens a block at exactly one occurrence, chosen by
// pickLabels; any other line carrying that label is ordinary text.
func scan(lines []line) *document {
	doc := &document{}
	state := stateNone
	opens := pickLabels(lines)

	for i, l := range lines {
		if l.kind == lineLabel && opens[l.label] != i {
			l.kind = lineText
		}

		switch l.kind {
		case lineTitle:
			if !doc.titleFound {
				doc.titleFound = true
				doc.title = l.value
			}
			state = stateNone

		case lineSection:
			doc.sections = append(doc.sections, sectionBlock{heading: l.value})
			state = stateSection

		case lineLabel:
			state = labelStates[l.label]
			b := doc.blockFor(state)
			b.found = true
			b.inline = l.value

		case lineDelimiter:
			if state != stateQuiz {
				state = stateNone
			}

		default:
			switch state {
			case stateSection:
				s := &doc.sections[len(doc.sections)-1]
				s.lines = append(s.lines, l)
			case stateNone:
			default:
				b := doc.blockFor(state)
				b.lines = append(b.lines, l)
			}
		}
	}
	return doc
}

// pickLabels returns, per label, the index of the occurrence that opens its
// block. An occurrence at a block boundary (start of input, after the title
// or a delimiter) outranks one inside running text, and a marked label
// outranks a plain one. Ties go to the earliest occurrence.
func pickLabels(lines []line) map[string]int {
	opens := make(map[string]int)
	best := make(map[string]int)
	boundary := true
	for i, l := range lines {
		if l.kind == lineBlank {
			continue
		}
		if l.kind == lineLabel {
			score := 0
			if boundary {
				score += 2
			}
			if l.marked {
				score++
			}
			if prev, ok := best[l.label]; !ok || score > prev {
				best[l.label] = score
				opens[l.label] = i
			}
		}
		boundary = l.kind == lineDelimiter || l.kind == lineTitle
	}
	return opens
}

func (d *document) blockFor(s blockState) *block {
	switch s {
	case stateIntroduction:
		return &d.introduction
	case stateSummary:
		return &d.summary
	case stateKeywords:
		return &d.keywords
	case stateQuiz:
		return &d.quiz
	}
	return nil
}

// text joins the raw body of a block, keeping interior newlines.
func (b block) text() string {
	return joinLines(b.inline, b.lines)
}

func joinLines(first string, lines []line) string {
	parts := make([]string, 0, len(lines)+1)
	if first != "" {
		parts = append(parts, first)
	}
	for _, l := range lines {
		parts = append(parts, l.raw)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Parser converts raw model output into a Chapter. It holds no state between
// calls and is safe for concurrent use.
type Parser struct {
	log *logger.Logger
}

func NewParser(log *logger.Logger) *Parser {
	if log == nil {
		log = logger.Nop()
	}
	return &Parser{log: log}
}

var defaultParser = NewParser(nil)

// ParseChapter parses rawText without logging.
func ParseChapter(rawText string) (Chapter, error) {
	return defaultParser.Parse(rawText)
}

// Parse extracts and validates a Chapter. Every failure is a *ParseError;
// a partially populated Chapter is never returned.
func (p *Parser) Parse(rawText string) (Chapter, error) {
	p.log.Debug("starting chapter parse", "raw_text_length", len(rawText))

	ch, err := p.parse(rawText)
	if err != nil {
		pe := err.(*ParseError)
		if pe.Structural() {
			p.log.Warn("chapter text did not match grammar", "kind", pe.Kind, "error", pe.Error())
		} else {
			p.log.Error("parsed chapter failed validation", "title", ch.Title, "fields", FieldErrors(pe))
		}
		return Chapter{}, err
	}

	p.log.Info("parsed chapter", "title", ch.Title, "sections", len(ch.Sections), "quiz_items", len(ch.Quiz))
	return ch, nil
}

func (p *Parser) parse(rawText string) (Chapter, error) {
	doc := scan(tokenize(rawText))

	if !doc.titleFound {
		return Chapter{}, &ParseError{Kind: KindMissingTitle, Msg: "no chapter title line found"}
	}
	title := strings.TrimSpace(doc.title)
	p.log.Debug("extracted title", "title", title)

	if !doc.introduction.found {
		return Chapter{}, &ParseError{Kind: KindMissingIntroduction, Msg: "no introduction block found"}
	}
	introduction := doc.introduction.text()
	p.log.Debug("extracted introduction", "length", len(introduction))

	if len(doc.sections) == 0 {
		return Chapter{}, &ParseError{Kind: KindMissingSections, Msg: "no sections found"}
	}
	sections := make([]Section, 0, len(doc.sections))
	for _, s := range doc.sections {
		sections = append(sections, Section{
			Heading: strings.TrimSpace(s.heading),
			Content: joinLines("", s.lines),
		})
	}
	p.log.Debug("extracted sections", "count", len(sections))

	if !doc.summary.found {
		return Chapter{}, &ParseError{Kind: KindMissingSummary, Msg: "no summary block found"}
	}
	summary := doc.summary.text()
	p.log.Debug("extracted summary", "length", len(summary))

	var keywords []string
	if doc.keywords.found {
		keywords = parseKeywords(doc.keywords)
		p.log.Debug("extracted keywords", "keywords", keywords)
	} else {
		p.log.Debug("no keywords block found")
	}

	if !doc.quiz.found {
		return Chapter{}, &ParseError{Kind: KindMissingQuiz, Msg: "no quiz block found"}
	}
	quiz, err := parseQuiz(doc.quiz.lines)
	if err != nil {
		return Chapter{}, err
	}
	p.log.Debug("extracted quiz items", "count", len(quiz))

	ch := Chapter{
		Title:        title,
		Introduction: introduction,
		Sections:     sections,
		Summary:      summary,
		Quiz:         quiz,
		Keywords:     keywords,
	}
	if err := Validate(ch); err != nil {
		return Chapter{Title: title}, &ParseError{Kind: KindValidationFailed, Msg: "parsed data failed validation", Err: err}
	}
	return ch, nil
}

// parseKeywords returns a non-nil slice: an empty block yields no entries.
func parseKeywords(b block) []string {
	keywords := make([]string, 0, len(b.lines))
	if b.inline != "" {
		for _, k := range strings.Split(b.inline, ",") {
			if k = cleanKeyword(k); k != "" {
				keywords = append(keywords, k)
			}
		}
	}
	for _, l := range b.lines {
		if l.kind == lineBlank {
			continue
		}
		if k := cleanKeyword(l.raw); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func cleanKeyword(s string) string {
	return strings.TrimSpace(strings.Trim(s, "-*• \t"))
}

type quizDraft struct {
	question    string
	options     []string
	answer      string
	answerSeen  bool
	awaitAnswer bool
}

// parseQuiz groups the quiz block into items. Options are the bullet lines
// between a question and its correct-answer line.
func parseQuiz(lines []line) ([]QuizItem, error) {
	var drafts []*quizDraft
	var cur *quizDraft

	for _, l := range lines {
		if l.kind == lineQuestion {
			cur = &quizDraft{question: l.value}
			drafts = append(drafts, cur)
			continue
		}
		if cur == nil || l.kind == lineBlank {
			continue
		}
		switch {
		case cur.awaitAnswer:
			cur.answer = l.value
			if l.kind == lineText {
				cur.answer = strings.TrimSpace(l.raw)
			}
			cur.awaitAnswer = false
		case cur.answerSeen:
		case l.kind == lineAnswer:
			cur.answerSeen = true
			cur.answer = l.value
			cur.awaitAnswer = l.value == ""
		case l.kind == lineOption:
			cur.options = append(cur.options, l.value)
		}
	}

	if len(drafts) == 0 {
		return nil, &ParseError{Kind: KindMissingQuiz, Msg: "no quiz items found in quiz block"}
	}

	items := make([]QuizItem, 0, len(drafts))
	for _, d := range drafts {
		if len(d.options) == 0 {
			return nil, &ParseError{
				Kind:     KindMalformedQuizItem,
				Msg:      "quiz item has no options",
				Fragment: truncate(d.question, 50),
			}
		}
		items = append(items, QuizItem{
			Question:      strings.TrimSpace(d.question),
			Options:       d.options,
			CorrectAnswer: strings.TrimSpace(d.answer),
		})
	}
	return items, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
