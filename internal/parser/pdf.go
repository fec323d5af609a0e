package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	pdflib "github.com/ledongthuc/pdf"
)

var errNoPDFText = errors.New("no text layer")

// PDFParser handles PDF files. It tries the Go library first and, when
// FallbackPdftotext is set, retries with the pdftotext binary.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*Extracted, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages, err := extractPDFPages(data)
	if err != nil && p.FallbackPdftotext {
		var text string
		if text, err = extractPdftotext(data); err == nil {
			pages = strings.Split(text, "\f")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	out := &Extracted{Title: stem(filename)}
	for _, raw := range pages {
		var pg page
		for _, para := range strings.Split(raw, "\n\n") {
			pg.add(para)
		}
		out.Pages = append(out.Pages, pg.String())
	}
	if strings.TrimSpace(strings.Join(out.Pages, "")) == "" {
		out.Pages = nil
	}
	return out, nil
}

// extractPDFPages returns one string per page. Unreadable pages are kept as
// empty strings so numbering is preserved.
func extractPDFPages(data []byte) ([]string, error) {
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	n := reader.NumPage()
	pages := make([]string, 0, n)
	found := false
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		if strings.TrimSpace(text) != "" {
			found = true
		}
		pages = append(pages, text)
	}
	if !found {
		return nil, errNoPDFText
	}
	return pages, nil
}

func extractPdftotext(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "testbook-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
