package llm

import (
	"fmt"
	"strings"
)

const SystemPrompt = `You are an expert technical educator writing one chapter of a study guide. You follow the requested output format exactly and never add commentary outside it.`

// chapterFormat is the grammar the chapter parser accepts.
const chapterFormat = `Write the chapter using EXACTLY this layout. Keep every label, heading marker and "---" line as shown.

# Chapter Title: <chapter title>

**Introduction:**
<one or more paragraphs>
---

## Section 1: <section heading>
<section content in Markdown>
---

## Section 2: <section heading>
<section content in Markdown>
---

**Summary:**
<one or more paragraphs>
---

**Keywords:**
- <keyword>
- <keyword>
---

**Quiz:**
1. **Question:** <question text>
   * <option>
   * <option>
   * <option>
   **Correct Answer:** <text identical to one of the options>

Rules:
- Write at least two sections and at least three quiz questions.
- Every question has at least two options, each on its own "*" line.
- The correct answer must repeat one option word for word.
- Do not wrap the output in code fences.`

// BuildChapterPrompt creates the user prompt for one chapter. reference is
// optional source material the chapter should be grounded in.
func BuildChapterPrompt(topic string, chapterNumber int, reference string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write chapter %d of a study guide on the topic: %q.\n\n", chapterNumber, strings.TrimSpace(topic))
	sb.WriteString(chapterFormat)
	if ref := strings.TrimSpace(reference); ref != "" {
		sb.WriteString("\n\n---\nBase the chapter on the following reference material where relevant:\n---\n")
		sb.WriteString(ref)
	}
	return sb.String()
}
