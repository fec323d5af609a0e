// Package parser turns uploaded files into plain text for extraction.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Extracted is the plain text recovered from one file. Each page holds its
// paragraphs separated by blank lines.
type Extracted struct {
	Title string
	Pages []string
}

// Text joins the pages with a form feed so downstream chunking can track page
// numbers.
func (e *Extracted) Text() string {
	if e == nil {
		return ""
	}
	return strings.Join(e.Pages, "\n\n\f")
}

// Parser converts raw document bytes into text.
type Parser interface {
	Parse(r io.Reader, filename string) (*Extracted, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// stem is the base filename without its extension.
func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// page collects paragraphs, dropping blank ones.
type page struct {
	paras []string
}

func (p *page) add(text string) {
	text = strings.TrimSpace(text)
	if text != "" {
		p.paras = append(p.paras, text)
	}
}

func (p *page) String() string {
	return strings.Join(p.paras, "\n\n")
}

// single wraps one page, or none when it is empty.
func single(title string, p *page) *Extracted {
	out := &Extracted{Title: title}
	if len(p.paras) > 0 {
		out.Pages = []string{p.String()}
	}
	return out
}
