package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCXParser extracts paragraph text from Word documents.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening docx: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	doc, err := docx.Parse(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("parsing docx: %w", err)
	}

	var paras []string
	for _, item := range doc.Document.Body.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch o := item.(type) {
		case *docx.Paragraph:
			if text := strings.TrimSpace(o.String()); text != "" {
				paras = append(paras, text)
			}
		case *docx.Table:
			if text := strings.TrimSpace(o.String()); text != "" {
				paras = append(paras, text)
			}
		}
	}

	return &Document{
		Text:   strings.Join(paras, "\n\n"),
		Format: "docx",
	}, nil
}
