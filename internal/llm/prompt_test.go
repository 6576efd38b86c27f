package llm

import (
	"strings"
	"testing"
)

func TestBuildChapterPrompt(t *testing.T) {
	p := BuildChapterPrompt("  Python asyncio ", 3, "")
	if !strings.Contains(p, `chapter 3 of a study guide on the topic: "Python asyncio"`) {
		t.Errorf("expected topic and chapter number in prompt, got:\n%s", p)
	}
	for _, marker := range []string{"# Chapter Title:", "**Introduction:**", "## Section 1:", "**Summary:**", "**Keywords:**", "**Quiz:**", "**Correct Answer:**"} {
		if !strings.Contains(p, marker) {
			t.Errorf("expected prompt to contain %q", marker)
		}
	}
	if strings.Contains(p, "reference material") {
		t.Error("expected no reference section without reference text")
	}
}

func TestBuildChapterPromptWithReference(t *testing.T) {
	p := BuildChapterPrompt("Go channels", 1, "Channels are typed conduits.")
	if !strings.HasSuffix(p, "Channels are typed conduits.") {
		t.Errorf("expected reference at end of prompt, got:\n%s", p)
	}
}
