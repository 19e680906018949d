package core

// error_messages.go maps technical errors to messages for the upload page and API.
//
// Each message carries a code that users can quote to support:
//
//	DB001-DB006   storage constraints and connectivity
//	VAL001-VAL005 cell, header and option validation
//	FILE001-FILE006 file handling and decoding
//	UPL001-UPL003 import slots, cancellation and timeouts
//	TBL001        unknown target table
//	RATE001       request throttling
//	ERR000        anything else; check the logs for the technical error

import (
	"fmt"
	"strings"
)

// UserMessage is the user-facing form of an error.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched in order against the lowercased error text.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{
		Message: "A vehicle with this identifier already exists",
		Action:  "Check the file for repeated VINs or internal numbers",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "A vehicle with this identifier already exists",
		Action:  "Check the file for repeated VINs or internal numbers",
		Code:    "DB001",
	}},
	{"value too long", UserMessage{
		Message: "A value is longer than the column allows",
		Action:  "Shorten the value (a VIN has at most 17 characters)",
		Code:    "DB002",
	}},
	{"rows matched", UserMessage{
		Message: "The vehicle to update is missing or not unique",
		Action:  "Check for vehicles sharing an internal number, then re-run the import",
		Code:    "DB003",
	}},
	{"ambiguous identity", UserMessage{
		Message: "The vehicle to update is missing or not unique",
		Action:  "Check for vehicles sharing an internal number, then re-run the import",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"database is locked", UserMessage{
		Message: "Database was busy with another import",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB006",
	}},

	{"invalid date", UserMessage{
		Message: "Invalid date format detected",
		Action:  "Use DD.MM.YYYY, MM.YYYY or YYYY-MM-DD",
		Code:    "VAL001",
	}},
	{"invalid number", UserMessage{
		Message: "Invalid price or decimal format detected",
		Action:  "Use 1.234,56 or 1234.56",
		Code:    "VAL002",
	}},
	{"invalid integer", UserMessage{
		Message: "Invalid whole number detected",
		Action:  "Remove units and text from numeric columns",
		Code:    "VAL003",
	}},
	{"missing required column", UserMessage{
		Message: "Required column is missing from CSV",
		Action:  "Add kundennummer, interne_nummer, car_type, marke and modell to the header",
		Code:    "VAL004",
	}},
	{"invalid import option", UserMessage{
		Message: "The import settings are not valid",
		Action:  "Use a supported delimiter (; , tab |) and encoding (utf-8, iso-8859-1, windows-1252)",
		Code:    "VAL005",
	}},

	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller exports",
		Code:    "FILE001",
	}},
	{"file not found", UserMessage{
		Message: "The file could not be found",
		Action:  "Check the path and try again",
		Code:    "FILE002",
	}},
	{"encoding error", UserMessage{
		Message: "The file encoding is not supported",
		Action:  "Export as UTF-8, ISO-8859-1 or Windows-1252",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to upload",
		Code:    "FILE004",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with a header row",
		Code:    "FILE005",
	}},
	{"file unreadable", UserMessage{
		Message: "The file could not be read as CSV",
		Action:  "Check the delimiter and quoting of the export",
		Code:    "FILE006",
	}},

	{"too many concurrent uploads", UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "UPL001",
	}},
	{"context canceled", UserMessage{
		Message: "The import was cancelled",
		Action:  "Please try again",
		Code:    "UPL002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "The import timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL003",
	}},

	{"unknown table", UserMessage{
		Message: "The target table is not configured",
		Action:  "Choose one of the listed tables",
		Code:    "TBL001",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// The first matching pattern wins; unmatched errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
