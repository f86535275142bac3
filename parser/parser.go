// Package parser extracts translatable text from input documents.
package parser

import "context"

// Document is the extracted content of one input file.
type Document struct {
	// Text is the full plain text, paragraphs separated by blank lines.
	Text string
	// Format is the source format the text came from, e.g. "pdf".
	Format string
	// Pages is the page count when the format has pages, otherwise 0.
	Pages int
	// Metadata carries format-specific details such as the title.
	Metadata map[string]string
}

// Parser extracts text from one document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*Document, error)
	SupportedFormats() []string
}
