// Package guide turns the semi-structured text a language model returns for a
// study-guide chapter into a validated Chapter record.
package guide

import "strings"

// QuizItem is one multiple-choice question. CorrectAnswer must equal one of
// Options after trimming.
type QuizItem struct {
	Question      string   `json:"question" validate:"notblank"`
	Options       []string `json:"options" validate:"min=2,dive,notblank"`
	CorrectAnswer string   `json:"correctAnswer" validate:"notblank"`
}

// Section is one body section of a chapter.
type Section struct {
	Heading string `json:"heading" validate:"notblank"`
	Content string `json:"content" validate:"notblank"`
}

// Chapter is the complete parsed artifact. A nil Keywords slice means the
// source had no keywords block; an empty non-nil slice means the block was
// present but listed nothing.
type Chapter struct {
	Title        string     `json:"title" validate:"notblank"`
	Introduction string     `json:"introduction" validate:"notblank"`
	Sections     []Section  `json:"sections" validate:"min=1,dive"`
	Summary      string     `json:"summary" validate:"notblank"`
	Quiz         []QuizItem `json:"quiz" validate:"min=1,dive"`
	Keywords     []string   `json:"keywords" validate:"omitempty,dive,notblank"`
}

// NewQuizItem builds a validated quiz item.
func NewQuizItem(question string, options []string, correctAnswer string) (QuizItem, error) {
	opts := make([]string, len(options))
	for i, o := range options {
		opts[i] = strings.TrimSpace(o)
	}
	item := QuizItem{
		Question:      strings.TrimSpace(question),
		Options:       opts,
		CorrectAnswer: strings.TrimSpace(correctAnswer),
	}
	if err := item.Validate(); err != nil {
		return QuizItem{}, err
	}
	return item, nil
}

// NewSection builds a validated section.
func NewSection(heading, content string) (Section, error) {
	s := Section{Heading: strings.TrimSpace(heading), Content: strings.TrimSpace(content)}
	if err := s.Validate(); err != nil {
		return Section{}, err
	}
	return s, nil
}

// NewChapter builds a validated chapter. Pass nil keywords to leave them unset.
func NewChapter(title, introduction string, sections []Section, summary string, quiz []QuizItem, keywords []string) (Chapter, error) {
	ch := Chapter{
		Title:        strings.TrimSpace(title),
		Introduction: strings.TrimSpace(introduction),
		Sections:     sections,
		Summary:      strings.TrimSpace(summary),
		Quiz:         quiz,
		Keywords:     keywords,
	}
	if err := Validate(ch); err != nil {
		return Chapter{}, err
	}
	return ch, nil
}

// HasOption reports whether answer matches one of the options exactly after trimming.
func (q QuizItem) HasOption(answer string) bool {
	answer = strings.TrimSpace(answer)
	for _, o := range q.Options {
		if strings.TrimSpace(o) == answer {
			return true
		}
	}
	return false
}

// HasKeywords reports whether the source carried a keywords block.
func (c Chapter) HasKeywords() bool {
	return c.Keywords != nil
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
