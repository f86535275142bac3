package writer

import (
	"fmt"
	"os"

	"github.com/fumiama/go-docx"

	"github.com/minhngdo/doctran/translate"
)

// docxWriter renders each batch as a standalone .docx artifact and
// rebuilds one document from them at merge time. Heading-looking
// paragraphs get larger bold runs so chapter structure survives.
type docxWriter struct {
	batchFiles
}

func newDocxWriter(outputPath string) *docxWriter {
	return &docxWriter{batchFiles{outputPath: outputPath}}
}

func (w *docxWriter) AddBatch(results []translate.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("writer: empty batch")
	}
	doc := docx.New().WithDefaultTheme()
	for _, r := range results {
		for _, p := range paragraphs(r.Translated) {
			addStyledParagraph(doc, p)
		}
	}
	path := w.nextTemp()
	if err := writeDocx(doc, path); err != nil {
		return err
	}
	return verify(path)
}

func (w *docxWriter) MergeAll() (string, error) {
	defer w.Cleanup()

	if len(w.temps) == 0 {
		return "", fmt.Errorf("writer: no batches to merge")
	}
	final := docx.New().WithDefaultTheme()
	for _, path := range w.temps {
		texts, err := readDocxParagraphs(path)
		if err != nil {
			return "", fmt.Errorf("reading batch artifact: %w", err)
		}
		for _, p := range texts {
			addStyledParagraph(final, p)
		}
	}
	if err := writeDocx(final, w.outputPath); err != nil {
		return "", err
	}
	if err := verify(w.outputPath); err != nil {
		return "", err
	}
	return w.outputPath, nil
}

func addStyledParagraph(doc *docx.Docx, text string) {
	para := doc.AddParagraph()
	switch headingLevel(text) {
	case 1:
		para.AddText(text).Size("32").Bold()
	case 2:
		para.AddText(text).Size("28").Bold()
	default:
		para.AddText(text)
	}
}

func writeDocx(doc *docx.Docx, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing document: %w", err)
	}
	return f.Close()
}

// readDocxParagraphs returns the paragraph texts of a document in
// order, skipping empty ones.
func readDocxParagraphs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	doc, err := docx.Parse(f, fi.Size())
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var out []string
	for _, item := range doc.Document.Body.Items {
		if p, ok := item.(*docx.Paragraph); ok {
			if text := p.String(); text != "" {
				out = append(out, text)
			}
		}
	}
	return out, nil
}
