package glossary

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadFile loads a glossary, dispatching on the file extension.
// Supported formats are .csv, .tsv and .xlsx.
func LoadFile(path string) (*Glossary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadDelimited(path, ',')
	case ".tsv":
		return loadDelimited(path, '\t')
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported glossary format: %s", filepath.Ext(path))
	}
}

// loadDelimited reads source,target[,note] rows. A header row whose
// first cell is "source" (any case) is skipped.
func loadDelimited(path string, comma rune) (*Glossary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening glossary: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading glossary %s: %w", filepath.Base(path), err)
	}
	return fromRows(rows), nil
}

// loadXLSX reads the first sheet of a workbook as source,target[,note].
func loadXLSX(path string) (*Glossary, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening glossary workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("glossary workbook %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading glossary sheet %s: %w", sheet, err)
	}
	return fromRows(rows), nil
}

func fromRows(rows [][]string) *Glossary {
	var terms []Term
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "source") {
			continue
		}
		t := Term{Source: row[0], Target: row[1]}
		if len(row) > 2 {
			t.Note = strings.TrimSpace(row[2])
		}
		terms = append(terms, t)
	}
	return New(terms)
}
