package parser

import (
	"strings"
	"testing"
)

func TestHTMLParser_SkipsChrome(t *testing.T) {
	input := `<html><head><title>Billing Guide</title><style>p{}</style></head>
<body>
<nav><p>Home</p></nav>
<h1>Overview</h1>
<p>Invoices are sent monthly.</p>
<ul><li>Email</li><li>Post</li></ul>
<script>var x = 1;</script>
<footer><p>Copyright</p></footer>
</body></html>`

	p := &HTMLParser{}
	out, err := p.Parse(strings.NewReader(input), "guide.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Title != "Billing Guide" {
		t.Errorf("expected title %q, got %q", "Billing Guide", out.Title)
	}
	want := "Overview\n\nInvoices are sent monthly.\n\nEmail\n\nPost"
	if got := out.Text(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHTMLParser_TitleFallsBackToFilename(t *testing.T) {
	p := &HTMLParser{}
	out, err := p.Parse(strings.NewReader("<p>Body</p>"), "page.htm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Title != "page" {
		t.Errorf("expected title %q, got %q", "page", out.Title)
	}
}
