package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. A form feed starts a new page.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Extracted, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	out := &Extracted{Title: stem(filename)}
	var cur page
	var para strings.Builder

	flushPara := func() {
		if para.Len() > 0 {
			cur.add(para.String())
			para.Reset()
		}
	}
	flushPage := func() {
		flushPara()
		out.Pages = append(out.Pages, cur.String())
		cur = page{}
	}

	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\f")
		for i, line := range parts {
			if i > 0 {
				flushPage()
			}
			if strings.TrimSpace(line) == "" {
				flushPara()
				continue
			}
			if para.Len() > 0 {
				para.WriteString("\n")
			}
			para.WriteString(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flushPage()

	// Blank pages keep their place so page numbers stay aligned.
	if strings.TrimSpace(strings.Join(out.Pages, "")) == "" {
		out.Pages = nil
	}
	return out, nil
}
