package core

// validation.go checks a CSV header before any transaction is opened.
//
// Only column presence is validated here. Cell values are checked by the
// normalizer, row by row, so that one bad cell never fails the batch.

import (
	"fmt"
	"strings"
)

// MissingColumnsError lists required columns absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// ValidateHeaders checks that every required column exists in the header.
// Returns the header index, or a *MissingColumnsError listing all missing columns.
func ValidateHeaders(headers []string, required []string) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string

	for _, col := range required {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	return idx, nil
}

// populatedCells counts cells that are non-empty after cleaning.
func populatedCells(row []string) int {
	n := 0
	for _, v := range row {
		if CleanText(CleanCell(v)) != "" {
			n++
		}
	}
	return n
}
