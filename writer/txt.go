package writer

import (
	"fmt"
	"io"
	"os"

	"github.com/minhngdo/doctran/translate"
)

// textWriter emits plain UTF-8 text. Batches are concatenated byte
// for byte, separated by a blank line.
type textWriter struct {
	batchFiles
}

func newTextWriter(outputPath string) *textWriter {
	return &textWriter{batchFiles{outputPath: outputPath}}
}

func (w *textWriter) AddBatch(results []translate.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("writer: empty batch")
	}
	path := w.nextTemp()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating batch artifact: %w", err)
	}
	for i, r := range results {
		if i > 0 {
			if _, err := f.WriteString("\n\n"); err != nil {
				f.Close()
				return err
			}
		}
		if _, err := f.WriteString(r.Translated); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return verify(path)
}

func (w *textWriter) MergeAll() (string, error) {
	defer w.Cleanup()

	if len(w.temps) == 0 {
		return "", fmt.Errorf("writer: no batches to merge")
	}
	out, err := os.Create(w.outputPath)
	if err != nil {
		return "", fmt.Errorf("creating output: %w", err)
	}
	temps := w.temps
	for i, path := range temps {
		if i > 0 {
			if _, err := out.WriteString("\n\n"); err != nil {
				out.Close()
				return "", err
			}
		}
		in, err := os.Open(path)
		if err != nil {
			out.Close()
			return "", fmt.Errorf("opening batch artifact: %w", err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			return "", fmt.Errorf("concatenating %s: %w", path, err)
		}
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := verify(w.outputPath); err != nil {
		return "", err
	}
	return w.outputPath, nil
}
