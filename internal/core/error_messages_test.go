package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "duplicate key maps correctly",
			err:         errors.New(`ERROR: duplicate key value violates unique constraint "cars_vin_key"`),
			wantCode:    "DB001",
			wantMessage: "A vehicle with this identifier already exists",
		},
		{
			name:        "sqlite unique constraint maps correctly",
			err:         errors.New("constraint failed: UNIQUE constraint failed: cars.vin"),
			wantCode:    "DB001",
			wantMessage: "A vehicle with this identifier already exists",
		},
		{
			name:        "value too long maps correctly",
			err:         errors.New("value too long for type character varying(17)"),
			wantCode:    "DB002",
			wantMessage: "A value is longer than the column allows",
		},
		{
			name:        "ambiguous identity maps to update code",
			err:         fmt.Errorf("%w: 2 stored rows have interne_nummer=42", ErrAmbiguousIdentity),
			wantCode:    "DB003",
			wantMessage: "The vehicle to update is missing or not unique",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			wantCode:    "DB004",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "sqlite busy maps correctly",
			err:         errors.New("database is locked (5) (SQLITE_BUSY)"),
			wantCode:    "DB005",
			wantMessage: "Database was busy with another import",
		},
		{
			name:        "invalid date maps correctly",
			err:         &FieldError{Column: "ez", Value: "31.02.2023", Err: errors.New(`invalid date "31.02.2023"`)},
			wantCode:    "VAL001",
			wantMessage: "Invalid date format detected",
		},
		{
			name:        "invalid number maps correctly",
			err:         fmt.Errorf("row 4: %w", errors.New(`invalid number "abc"`)),
			wantCode:    "VAL002",
			wantMessage: "Invalid price or decimal format detected",
		},
		{
			name:        "missing columns maps correctly",
			err:         &MissingColumnsError{Columns: []string{"marke"}},
			wantCode:    "VAL004",
			wantMessage: "Required column is missing from CSV",
		},
		{
			name:        "file not found maps correctly",
			err:         &BatchError{Phase: PhaseOpening, Err: ErrFileNotFound},
			wantCode:    "FILE002",
			wantMessage: "The file could not be found",
		},
		{
			name:        "empty file maps correctly",
			err:         ErrEmptyFile,
			wantCode:    "FILE005",
			wantMessage: "The uploaded file is empty",
		},
		{
			name:        "unreadable file has its own code",
			err:         &BatchError{Phase: PhaseHeaderValidation, Err: fmt.Errorf("%w: bare \" in non-quoted field", ErrFileUnreadable)},
			wantCode:    "FILE006",
			wantMessage: "The file could not be read as CSV",
		},
		{
			name:        "limiter timeout maps correctly",
			err:         ErrTooManyImports,
			wantCode:    "UPL001",
			wantMessage: "Too many imports in progress",
		},
		{
			name:        "cancellation maps correctly",
			err:         &BatchError{Phase: PhaseRowLoop, Err: context.Canceled},
			wantCode:    "UPL002",
			wantMessage: "The import was cancelled",
		},
		{
			name:        "unknown table maps correctly",
			err:         fmt.Errorf("%w: trucks", ErrUnknownTable),
			wantCode:    "TBL001",
			wantMessage: "The target table is not configured",
		},
		{
			name:        "unknown error maps to default",
			err:         errors.New("some random error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %v, want %v", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %v, want %v", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyImports)
	want := "Too many imports in progress (Code: UPL001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("duplicate key value"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("something unexpected"), false},
	}

	for _, tt := range tests {
		if got := IsUserFacing(tt.err); got != tt.want {
			t.Errorf("IsUserFacing(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
