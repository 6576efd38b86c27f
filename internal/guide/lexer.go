package guide

import (
	"regexp"
	"strings"
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineText
	lineDelimiter
	lineTitle
	lineLabel
	lineSection
	lineQuestion
	lineOption
	lineAnswer
)

// structural lines end whatever block is open.
func (k lineKind) structural() bool {
	return k == lineTitle || k == lineLabel || k == lineSection
}

// Label names recognised at the start of a block.
const (
	labelIntroduction = "introduction"
	labelSummary      = "summary"
	labelKeywords     = "keywords"
	labelQuiz         = "quiz"
)

type line struct {
	kind   lineKind
	label  string // lineLabel only
	marked bool   // lineLabel written with bold or heading markers
	value  string // captured remainder, trimmed
	raw    string
}

var (
	titleRe     = regexp.MustCompile(`^\s*#\s*Chapter Title:\s*(.*?)\s*$`)
	sectionRe   = regexp.MustCompile(`^\s*##\s*Section\s*\d+\s*:\s*(.*?)\s*$`)
	labelRe     = regexp.MustCompile(`(?i)^\s*(#{1,6}\s*)?(\*{0,2})\s*(Introduction|Summary|Keywords|Quiz)\s*\*{0,2}\s*:\s*\*{0,2}\s*(.*?)\s*$`)
	delimiterRe = regexp.MustCompile(`^\s*-{3,}\s*$`)
	questionRe  = regexp.MustCompile(`(?i)^\s*\d+\s*[.)]\s*\*{0,2}\s*Question\s*\*{0,2}\s*:\s*\*{0,2}\s*(.*?)\s*$`)
	answerRe    = regexp.MustCompile(`(?i)^\s*(?:[*-]\s+)?\*{0,2}\s*Correct Answer\s*\*{0,2}\s*:\s*\*{0,2}\s*(.*?)\s*$`)
	optionRe    = regexp.MustCompile(`^\s*[*-]\s+(.+?)\s*$`)
)

// tokenize classifies every line of raw independently of its neighbours.
func tokenize(raw string) []line {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	src := strings.Split(raw, "\n")
	out := make([]line, 0, len(src))
	for _, s := range src {
		out = append(out, classify(s))
	}
	return out
}

func classify(s string) line {
	l := line{raw: strings.TrimRight(s, " \t\r"), kind: lineText}
	switch {
	case strings.TrimSpace(s) == "":
		l.kind = lineBlank
	case delimiterRe.MatchString(s):
		l.kind = lineDelimiter
	case titleRe.MatchString(s):
		l.kind = lineTitle
		l.value = titleRe.FindStringSubmatch(s)[1]
	case sectionRe.MatchString(s):
		l.kind = lineSection
		l.value = sectionRe.FindStringSubmatch(s)[1]
	case labelRe.MatchString(s):
		m := labelRe.FindStringSubmatch(s)
		l.kind = lineLabel
		l.label = strings.ToLower(m[3])
		l.marked = m[1] != "" || m[2] == "**"
		l.value = m[4]
	case questionRe.MatchString(s):
		l.kind = lineQuestion
		l.value = questionRe.FindStringSubmatch(s)[1]
	case answerRe.MatchString(s):
		l.kind = lineAnswer
		l.value = answerRe.FindStringSubmatch(s)[1]
	case optionRe.MatchString(s):
		l.kind = lineOption
		l.value = optionRe.FindStringSubmatch(s)[1]
	}
	return l
}
