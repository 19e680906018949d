package core

// streaming.go provides the reader stack between an uploaded file and the CSV parser.
//
//   - NewDecodingReader: charset decoding to UTF-8, BOM removal, invalid-byte replacement
//   - CountingReader: tracks raw bytes read for progress reporting
//   - DetectDelimiter: sniffs the delimiter from the header line
//
// Everything streams; a file is never loaded into memory as a whole.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Supported input encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingISO88591    = "iso-8859-1"
	EncodingWindows1252 = "windows-1252"
)

var encodings = map[string]encoding.Encoding{
	"":             unicode.UTF8,
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"latin-1":      charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
}

// SupportedEncoding reports whether NewDecodingReader accepts name.
func SupportedEncoding(name string) bool {
	_, ok := encodings[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// NewDecodingReader returns a reader producing UTF-8 from r.
//
// For UTF-8 input a leading BOM is removed and invalid sequences are replaced
// with U+FFFD. Single-byte encodings are decoded with their charmap; a BOM in
// such a file is impossible, so no BOM handling applies.
func NewDecodingReader(r io.Reader, name string) (io.Reader, error) {
	enc, ok := encodings[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("encoding error: unsupported encoding %q", name)
	}

	if enc == unicode.UTF8 {
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// CountingReader wraps an io.Reader to track bytes read.
// Used for progress reporting during imports.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // If known (0 if unknown)
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{
		reader: r,
		Total:  total,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Percent returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Percent() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// sniffSize bounds how much of the input is inspected for the header line.
const sniffSize = 64 * 1024

// DetectDelimiter peeks at the first line of br and returns the most frequent
// of ';', ',' and tab outside quoted sections. Ties and lines without any
// candidate resolve to ';'. The reader is not advanced.
func DetectDelimiter(br *bufio.Reader) rune {
	buf, _ := br.Peek(sniffSize)
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		buf = buf[:i]
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, r := range string(buf) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case r == ';' || r == ',' || r == '\t':
			counts[r]++
		}
	}

	best, bestN := ';', counts[';']
	for _, r := range []rune{',', '\t'} {
		if counts[r] > bestN {
			best, bestN = r, counts[r]
		}
	}
	return best
}

// ParseDelimiter converts a configured delimiter name to a rune.
// "auto" and "" return 0, meaning detect from the header.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case ";", "semicolon":
		return ';', nil
	case ",", "comma":
		return ',', nil
	case "\t", "\\t", "tab":
		return '\t', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported delimiter %q", s)
}
