package source

import "strings"

const tokensPerWord = 1.33

// EstimateTokens approximates a token count from the word count.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(int(float64(words)*tokensPerWord), 1)
}

// Excerpt returns the leading passages of doc that fit in maxTokens. The
// passage that crosses the budget is cut at a sentence boundary; if not
// even its first sentence fits it is dropped.
func Excerpt(doc *Document, maxTokens int) string {
	if doc == nil || maxTokens <= 0 {
		return ""
	}

	var parts []string
	used := 0
	for _, p := range doc.Passages {
		block := p.Text
		if p.Heading != "" {
			block = p.Heading + "\n" + p.Text
		}
		cost := EstimateTokens(block)
		if used+cost <= maxTokens {
			parts = append(parts, block)
			used += cost
			continue
		}

		remaining := maxTokens - used
		if p.Heading != "" {
			remaining -= EstimateTokens(p.Heading)
		}
		if cut := leadingSentences(p.Text, remaining); cut != "" {
			if p.Heading != "" {
				cut = p.Heading + "\n" + cut
			}
			parts = append(parts, cut)
		}
		break
	}
	return strings.Join(parts, "\n\n")
}

// leadingSentences keeps whole sentences from the start of text while the
// running estimate stays within budget.
func leadingSentences(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	var kept []string
	used := 0
	for _, s := range splitSentences(text) {
		cost := EstimateTokens(s)
		if used+cost > budget {
			break
		}
		kept = append(kept, s)
		used += cost
	}
	return strings.Join(kept, " ")
}

// splitSentences breaks on ., ! or ? followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t') {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
