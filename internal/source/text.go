package source

import (
	"bufio"
	"io"
	"strings"
)

// TextExtractor treats blank-line separated blocks as paragraphs.
type TextExtractor struct{}

func (e *TextExtractor) Extract(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	b := newBuilder(baseTitle(filename))
	var para []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			b.addText(strings.Join(para, "\n"))
			para = para[:0]
			continue
		}
		para = append(para, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	b.addText(strings.Join(para, "\n"))
	return b.done(), nil
}
