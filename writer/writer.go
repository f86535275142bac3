// Package writer produces the translated output document in batches,
// so a long job never holds more than one batch of text in memory.
// Each batch becomes a verified temporary artifact; the final merge
// concatenates the artifacts and always removes them.
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/minhngdo/doctran/translate"
)

// BatchWriter accumulates translated results batch by batch and then
// assembles the final document. Implementations are not safe for
// concurrent use; the pipeline flushes batches from a single goroutine.
type BatchWriter interface {
	// AddBatch writes one batch of results to a temporary artifact.
	AddBatch(results []translate.Result) error
	// MergeAll concatenates the batch artifacts into the output file
	// and deletes them. Temporaries are removed even when the merge
	// fails.
	MergeAll() (string, error)
	// Cleanup removes any leftover temporary artifacts. Safe to call
	// after MergeAll or after an aborted job.
	Cleanup() error
}

// New returns the BatchWriter for the output path's format.
// Supported formats: txt, docx, pdf.
func New(outputPath string) (BatchWriter, error) {
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".txt", ".text", ".md":
		return newTextWriter(outputPath), nil
	case ".docx":
		return newDocxWriter(outputPath), nil
	case ".pdf":
		return newPDFWriter(outputPath), nil
	default:
		return nil, fmt.Errorf("writer: unsupported output format %q", filepath.Ext(outputPath))
	}
}

// batchFiles tracks the temporary artifacts shared by all writers.
type batchFiles struct {
	outputPath string
	temps      []string
}

func (b *batchFiles) nextTemp() string {
	path := fmt.Sprintf("%s.batch%04d.tmp", b.outputPath, len(b.temps))
	b.temps = append(b.temps, path)
	return path
}

// verify rejects a missing or empty artifact before it is trusted.
func verify(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verifying artifact %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("artifact %s is empty", path)
	}
	return nil
}

func (b *batchFiles) Cleanup() error {
	var firstErr error
	for _, path := range b.temps {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	b.temps = nil
	return firstErr
}

// Heading detection. Translated STEM documents keep their structural
// markers; the DOCX and PDF writers style them instead of emitting
// flat body text.
var (
	chapterHeading  = regexp.MustCompile(`^(?:CHAPTER|Chapter|CHƯƠNG|Chương)\s+\d+\b`)
	numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+\S`)
	romanHeading    = regexp.MustCompile(`^[IVXLCDM]{1,7}\.\s+\S`)
)

// headingLevel classifies a paragraph: 0 is body text, 1 and 2 are
// heading depths. Only short single-line paragraphs qualify.
func headingLevel(text string) int {
	line := strings.TrimSpace(text)
	if line == "" || len(line) > 100 || strings.ContainsRune(line, '\n') {
		return 0
	}
	if chapterHeading.MatchString(line) || romanHeading.MatchString(line) {
		return 1
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		if strings.Count(m[1], ".") == 0 {
			return 1
		}
		return 2
	}
	return 0
}

// paragraphs splits a result's text on blank lines.
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
