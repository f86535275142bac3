package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts text with the native PDF text layer. Scanned
// documents without a text layer come back empty; the pipeline treats
// that as an unusable input rather than guessing.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var pages []string
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single damaged page does not void the document.
			continue
		}
		if text = normalizePageText(text); text != "" {
			pages = append(pages, text)
		}
	}

	return &Document{
		Text:   strings.Join(pages, "\n\n"),
		Format: "pdf",
		Pages:  totalPages,
	}, nil
}

// normalizePageText tidies extracted page text: trims line edges and
// collapses the extractor's spurious blank lines.
func normalizePageText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			out = append(out, "")
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
