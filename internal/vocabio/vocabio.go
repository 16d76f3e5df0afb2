// Package vocabio reads and writes word lists as xlsx workbooks.
//
// Imported sheets have the columns word, meaning, example and an optional
// part of speech. A first row whose first cell reads "word" is a header.
package vocabio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/DukeRupert/toeicprep/internal/domain"
)

// MaxImportRows bounds the rows read from one workbook.
const MaxImportRows = 5000

// SheetName is the sheet written by Write.
const SheetName = "Vocabulary"

// ErrTooManyRows is returned when a workbook exceeds MaxImportRows.
var ErrTooManyRows = fmt.Errorf("workbook has more than %d rows", MaxImportRows)

// ErrEmptyWorkbook is returned when the first sheet has no data rows.
var ErrEmptyWorkbook = errors.New("workbook has no rows")

// Read parses the first sheet of an xlsx workbook. Rows with an empty word
// are reported in rowErrors by their 1-based sheet row number and skipped.
func Read(r io.Reader) (entries []domain.VocabularyEntry, rowErrors []string, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyWorkbook
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}

	start := 0
	if len(rows) > 0 && len(rows[0]) > 0 && strings.EqualFold(strings.TrimSpace(rows[0][0]), "word") {
		start = 1
	}
	if len(rows)-start > MaxImportRows {
		return nil, nil, ErrTooManyRows
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		entry := domain.VocabularyEntry{
			Word:         cell(row, 0),
			Meaning:      cell(row, 1),
			Example:      cell(row, 2),
			PartOfSpeech: cell(row, 3),
		}
		if entry.Word == "" {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: word is empty", i+1))
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 && len(rowErrors) == 0 {
		return nil, nil, ErrEmptyWorkbook
	}
	return entries, rowErrors, nil
}

var header = []any{"Word", "Meaning", "Example", "Part of speech", "Mastered", "Reviews", "Correct", "Next review"}

// Write renders items as a single-sheet workbook.
func Write(w io.Writer, items []domain.VocabularyItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "H1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "C", 32); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	for i, item := range items {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			item.Word,
			item.Meaning,
			item.Example,
			item.PartOfSpeech,
			item.Mastered,
			item.ReviewCount,
			item.CorrectCount,
			item.NextReviewDate.UTC().Format(time.DateOnly),
		}
		if err := f.SetSheetRow(SheetName, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
