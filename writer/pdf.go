package writer

import (
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/minhngdo/doctran/translate"
)

// pdfWriter renders each batch as a standalone PDF and appends the
// batch pages into the final file at merge time.
type pdfWriter struct {
	batchFiles
}

func newPDFWriter(outputPath string) *pdfWriter {
	return &pdfWriter{batchFiles{outputPath: outputPath}}
}

func (w *pdfWriter) AddBatch(results []translate.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("writer: empty batch")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, r := range results {
		for _, p := range paragraphs(r.Translated) {
			switch headingLevel(p) {
			case 1:
				pdf.SetFont("Helvetica", "B", 16)
			case 2:
				pdf.SetFont("Helvetica", "B", 13)
			default:
				pdf.SetFont("Helvetica", "", 11)
			}
			pdf.MultiCell(0, 5.5, tr(p), "", "L", false)
			pdf.Ln(3)
		}
	}

	path := w.nextTemp()
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("writing batch pdf: %w", err)
	}
	return verify(path)
}

func (w *pdfWriter) MergeAll() (string, error) {
	defer w.Cleanup()

	if len(w.temps) == 0 {
		return "", fmt.Errorf("writer: no batches to merge")
	}
	if err := api.MergeCreateFile(w.temps, w.outputPath, false, nil); err != nil {
		return "", fmt.Errorf("appending batch pages: %w", err)
	}
	if err := verify(w.outputPath); err != nil {
		return "", err
	}
	return w.outputPath, nil
}
