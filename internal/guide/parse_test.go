package guide

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
)

const asyncioChapter = `# Chapter Title: Introduction to Asyncio

**Introduction:**
Asyncio is Python's library for writing concurrent code
using the async/await syntax.
---

## Section 1: Core Concepts
The event loop schedules coroutines.

Coroutines yield control at await points.
---

## Section 2: Running Tasks
Use asyncio.create_task to run coroutines concurrently.
---

**Summary:**
Asyncio enables cooperative multitasking on a single thread.
---

**Keywords:**
- event loop
- coroutine
- await
- task
- asyncio.run
---

**Quiz:**
1. **Question:** What runs coroutines in asyncio?
   * The event loop
   * The garbage collector
   * The GIL
   **Correct Answer:** The event loop
2. **Question:** Which function schedules a coroutine as a task?
   * asyncio.sleep
   * asyncio.create_task
   **Correct Answer:** asyncio.create_task
`

func removeKeywordsBlock(s string) string {
	start := strings.Index(s, "**Keywords:**")
	end := strings.Index(s, "**Quiz:**")
	return s[:start] + s[end:]
}

func TestParseChapter_FullChapter(t *testing.T) {
	ch, err := ParseChapter(asyncioChapter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ch.Title != "Introduction to Asyncio" {
		t.Errorf("expected title %q, got %q", "Introduction to Asyncio", ch.Title)
	}
	wantIntro := "Asyncio is Python's library for writing concurrent code\nusing the async/await syntax."
	if ch.Introduction != wantIntro {
		t.Errorf("expected introduction %q, got %q", wantIntro, ch.Introduction)
	}
	if len(ch.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(ch.Sections))
	}
	if ch.Sections[0].Heading != "Core Concepts" || ch.Sections[1].Heading != "Running Tasks" {
		t.Errorf("unexpected headings: %q, %q", ch.Sections[0].Heading, ch.Sections[1].Heading)
	}
	wantContent := "The event loop schedules coroutines.\n\nCoroutines yield control at await points."
	if ch.Sections[0].Content != wantContent {
		t.Errorf("expected section content %q, got %q", wantContent, ch.Sections[0].Content)
	}
	if ch.Summary != "Asyncio enables cooperative multitasking on a single thread." {
		t.Errorf("unexpected summary %q", ch.Summary)
	}
	if len(ch.Keywords) != 5 {
		t.Fatalf("expected 5 keywords, got %d: %v", len(ch.Keywords), ch.Keywords)
	}
	if ch.Keywords[0] != "event loop" || ch.Keywords[4] != "asyncio.run" {
		t.Errorf("unexpected keywords %v", ch.Keywords)
	}
	if len(ch.Quiz) != 2 {
		t.Fatalf("expected 2 quiz items, got %d", len(ch.Quiz))
	}
	q := ch.Quiz[0]
	if q.Question != "What runs coroutines in asyncio?" {
		t.Errorf("unexpected question %q", q.Question)
	}
	wantOpts := []string{"The event loop", "The garbage collector", "The GIL"}
	if !reflect.DeepEqual(q.Options, wantOpts) {
		t.Errorf("expected options %v, got %v", wantOpts, q.Options)
	}
	if q.CorrectAnswer != "The event loop" {
		t.Errorf("unexpected answer %q", q.CorrectAnswer)
	}
	if ch.Quiz[1].CorrectAnswer != "asyncio.create_task" {
		t.Errorf("unexpected second answer %q", ch.Quiz[1].CorrectAnswer)
	}
}

func TestParseChapter_NoKeywordsBlockLeavesKeywordsUnset(t *testing.T) {
	full, err := ParseChapter(asyncioChapter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch, err := ParseChapter(removeKeywordsBlock(asyncioChapter))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.Keywords != nil || ch.HasKeywords() {
		t.Errorf("expected keywords unset, got %#v", ch.Keywords)
	}

	full.Keywords = nil
	if !reflect.DeepEqual(full, ch) {
		t.Errorf("expected remaining fields unchanged\nwant %#v\ngot  %#v", full, ch)
	}
}

func TestParseChapter_EmptyKeywordsBlock(t *testing.T) {
	input := strings.Replace(asyncioChapter,
		"**Keywords:**\n- event loop\n- coroutine\n- await\n- task\n- asyncio.run\n---",
		"**Keywords:**\n---", 1)
	ch, err := ParseChapter(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.Keywords == nil {
		t.Fatal("expected empty, non-nil keywords")
	}
	if len(ch.Keywords) != 0 {
		t.Errorf("expected 0 keywords, got %v", ch.Keywords)
	}
	if !ch.HasKeywords() {
		t.Error("expected HasKeywords to be true for a present but empty block")
	}
}

func TestParseChapter_KeywordsStripBulletMarkers(t *testing.T) {
	input := strings.Replace(asyncioChapter,
		"- event loop\n- coroutine\n- await\n- task\n- asyncio.run",
		"* **event loop**\n-   coroutine  \n\n  - await", 1)
	ch, err := ParseChapter(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"event loop", "coroutine", "await"}
	if !reflect.DeepEqual(ch.Keywords, want) {
		t.Errorf("expected %v, got %v", want, ch.Keywords)
	}
}

func TestParseChapter_Idempotent(t *testing.T) {
	a, err := ParseChapter(asyncioChapter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ParseChapter(asyncioChapter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("expected identical chapters from identical input")
	}
}

func TestParseChapter_SectionsKeepSourceOrder(t *testing.T) {
	input := strings.Replace(asyncioChapter, "## Section 1: Core Concepts", "## Section 9: Core Concepts", 1)
	input = strings.Replace(input, "## Section 2: Running Tasks", "## Section 1: Running Tasks", 1)
	input = strings.Replace(input,
		"Use asyncio.create_task to run coroutines concurrently.\n---",
		"Use asyncio.create_task to run coroutines concurrently.\n---\n\n## Section 1: Cancellation\nTasks can be cancelled.\n---", 1)

	ch, err := ParseChapter(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for _, s := range ch.Sections {
		got = append(got, s.Heading)
	}
	want := []string{"Core Concepts", "Running Tasks", "Cancellation"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected headings %v, got %v", want, got)
	}
}

func TestParseChapter_StructuralFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  Kind
		want  error
	}{
		{"empty input", "", KindMissingTitle, ErrMissingTitle},
		{"missing title", strings.Replace(asyncioChapter, "# Chapter Title: Introduction to Asyncio", "Introduction to Asyncio", 1), KindMissingTitle, ErrMissingTitle},
		{"level two title is not a title", strings.Replace(asyncioChapter, "# Chapter Title:", "## Chapter Title:", 1), KindMissingTitle, ErrMissingTitle},
		{"missing introduction", strings.Replace(asyncioChapter, "**Introduction:**", "", 1), KindMissingIntroduction, ErrMissingIntroduction},
		{"missing sections", strings.NewReplacer("## Section 1: Core Concepts", "", "## Section 2: Running Tasks", "").Replace(asyncioChapter), KindMissingSections, ErrMissingSections},
		{"missing summary", strings.Replace(asyncioChapter, "**Summary:**", "", 1), KindMissingSummary, ErrMissingSummary},
		{"missing quiz label", strings.Replace(asyncioChapter, "**Quiz:**", "", 1), KindMissingQuiz, ErrMissingQuiz},
		{"quiz without items", asyncioChapter[:strings.Index(asyncioChapter, "1. **Question:**")], KindMissingQuiz, ErrMissingQuiz},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseChapter(tc.input)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Kind != tc.kind {
				t.Errorf("expected kind %q, got %q", tc.kind, pe.Kind)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected errors.Is(err, %v) to hold", tc.want)
			}
			if !pe.Structural() {
				t.Error("expected structural failure")
			}
		})
	}
}

func TestParseChapter_QuizItemWithoutOptions(t *testing.T) {
	input := strings.Replace(asyncioChapter,
		"   * asyncio.sleep\n   * asyncio.create_task\n", "", 1)
	_, err := ParseChapter(input)
	if KindOf(err) != KindMalformedQuizItem {
		t.Fatalf("expected %q, got %v", KindMalformedQuizItem, err)
	}
	var pe *ParseError
	errors.As(err, &pe)
	if pe.Fragment != "Which function schedules a coroutine as a task?" {
		t.Errorf("expected fragment to name the question, got %q", pe.Fragment)
	}
}

func TestParseChapter_MalformedFragmentTruncated(t *testing.T) {
	long := strings.Repeat("x", 80)
	input := strings.Replace(asyncioChapter,
		"2. **Question:** Which function schedules a coroutine as a task?\n   * asyncio.sleep\n   * asyncio.create_task\n",
		"2. **Question:** "+long+"\n", 1)
	_, err := ParseChapter(input)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindMalformedQuizItem {
		t.Fatalf("expected malformed quiz item, got %v", err)
	}
	if pe.Fragment != strings.Repeat("x", 50)+"..." {
		t.Errorf("expected truncated fragment, got %q", pe.Fragment)
	}
}

func TestParseChapter_AnswerNotAmongOptions(t *testing.T) {
	input := strings.Replace(asyncioChapter, "**Correct Answer:** asyncio.create_task", "**Correct Answer:** asyncio.gather", 1)
	_, err := ParseChapter(input)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	var pe *ParseError
	errors.As(err, &pe)
	if pe.Structural() {
		t.Error("validation failure must not be structural")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError in chain, got %T", pe.Err)
	}
	if !ve.Has("correctAnswer") {
		t.Errorf("expected a correctAnswer field error, got %+v", ve.Errors)
	}
	fields := FieldErrors(err)
	if len(fields) != 1 || fields[0].Field != "quiz[1].correctAnswer" {
		t.Errorf("expected single error on quiz[1].correctAnswer, got %+v", fields)
	}
	if errors.Unwrap(ve) == nil {
		t.Error("expected validator cause to be preserved")
	}
}

func TestParseChapter_EmptySectionContentFailsValidation(t *testing.T) {
	input := strings.Replace(asyncioChapter, "Use asyncio.create_task to run coroutines concurrently.\n", "", 1)
	_, err := ParseChapter(input)
	if KindOf(err) != KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
	fields := FieldErrors(err)
	if len(fields) != 1 || fields[0].Field != "sections[1].content" {
		t.Errorf("expected sections[1].content error, got %+v", fields)
	}
}

func TestParseChapter_SingleOptionFailsValidation(t *testing.T) {
	input := strings.Replace(asyncioChapter, "   * asyncio.sleep\n", "", 1)
	_, err := ParseChapter(input)
	if KindOf(err) != KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
	fields := FieldErrors(err)
	if len(fields) == 0 || fields[0].Field != "quiz[1].options" || fields[0].Rule != "min" {
		t.Errorf("expected min rule on quiz[1].options, got %+v", fields)
	}
}

func TestParseChapter_LenientFormatting(t *testing.T) {
	input := "\r\n  #   Chapter Title:   Channels in Go   \r\n" +
		"Introduction: Channels connect goroutines.\r\n" +
		"---\r\n" +
		"##Section 3:Buffered Channels\r\n" +
		"A buffered channel has capacity.\r\n" +
		"## Section 1: Closing\r\n" +
		"Close signals no more values.\r\n" +
		"**Summary**: Channels are typed conduits.\r\n" +
		"**Quiz:**\r\n" +
		"1) Question: What does close do?\r\n" +
		"- Signals completion\r\n" +
		"- Frees memory\r\n" +
		"Correct Answer:\r\n" +
		"Signals completion\r\n"
	ch, err := ParseChapter(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.Title != "Channels in Go" {
		t.Errorf("unexpected title %q", ch.Title)
	}
	if ch.Introduction != "Channels connect goroutines." {
		t.Errorf("unexpected introduction %q", ch.Introduction)
	}
	if len(ch.Sections) != 2 || ch.Sections[0].Content != "A buffered channel has capacity." {
		t.Errorf("unexpected sections %+v", ch.Sections)
	}
	if ch.Summary != "Channels are typed conduits." {
		t.Errorf("unexpected summary %q", ch.Summary)
	}
	if ch.Quiz[0].CorrectAnswer != "Signals completion" {
		t.Errorf("unexpected answer %q", ch.Quiz[0].CorrectAnswer)
	}
	if ch.HasKeywords() {
		t.Error("expected no keywords")
	}
}

func TestParseChapter_LabelWordsInsideBlocksAreText(t *testing.T) {
	tests := []struct {
		name        string
		old, new    string
		wantSection int
		wantContent string
		wantSummary string
	}{
		{
			name:        "plain summary line in section",
			old:         "The event loop schedules coroutines.\n",
			new:         "The event loop schedules coroutines.\nSummary: the loop is single threaded.\n",
			wantSection: 0,
			wantContent: "The event loop schedules coroutines.\nSummary: the loop is single threaded.\n\nCoroutines yield control at await points.",
			wantSummary: "Asyncio enables cooperative multitasking on a single thread.",
		},
		{
			name:        "bold quiz line in section",
			old:         "Use asyncio.create_task to run coroutines concurrently.\n",
			new:         "Use asyncio.create_task to run coroutines concurrently.\n**Quiz:** try it yourself with two tasks.\n",
			wantSection: 1,
			wantContent: "Use asyncio.create_task to run coroutines concurrently.\n**Quiz:** try it yourself with two tasks.",
			wantSummary: "Asyncio enables cooperative multitasking on a single thread.",
		},
		{
			name:        "summary label in introduction",
			old:         "using the async/await syntax.\n",
			new:         "using the async/await syntax.\nSummary: see the end of the chapter.\n",
			wantSection: 0,
			wantContent: "The event loop schedules coroutines.\n\nCoroutines yield control at await points.",
			wantSummary: "Asyncio enables cooperative multitasking on a single thread.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Replace(asyncioChapter, tt.old, tt.new, 1)
			if input == asyncioChapter {
				t.Fatal("fixture replacement did not apply")
			}
			ch, err := ParseChapter(input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ch.Sections) != 2 {
				t.Fatalf("expected 2 sections, got %d", len(ch.Sections))
			}
			if got := ch.Sections[tt.wantSection].Content; got != tt.wantContent {
				t.Errorf("expected section content %q, got %q", tt.wantContent, got)
			}
			if ch.Summary != tt.wantSummary {
				t.Errorf("expected summary %q, got %q", tt.wantSummary, ch.Summary)
			}
			if len(ch.Quiz) != 2 {
				t.Errorf("expected 2 quiz items, got %d", len(ch.Quiz))
			}
		})
	}
}

func TestParseChapter_QuizIgnoresTrailingDelimiter(t *testing.T) {
	input := strings.Replace(asyncioChapter,
		"   **Correct Answer:** The event loop\n",
		"   **Correct Answer:** The event loop\n---\n", 1) + "---\n"
	ch, err := ParseChapter(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.Quiz) != 2 {
		t.Errorf("expected 2 quiz items, got %d", len(ch.Quiz))
	}
}

func TestParseChapter_ConcurrentCalls(t *testing.T) {
	want, err := ParseChapter(asyncioChapter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ParseChapter(asyncioChapter)
			if err != nil || !reflect.DeepEqual(got, want) {
				errs <- "mismatched concurrent parse"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
