package parser

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextParser handles plain text and markdown files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt", "text", "md"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &Document{
		Text:   strings.TrimSpace(text),
		Format: "txt",
	}, nil
}
