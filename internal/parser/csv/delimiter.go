package csv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DetectDelimiter picks the field separator from a header line: ';' when
// present, otherwise ',' when present, otherwise ';'.
func DetectDelimiter(header string) rune {
	switch {
	case strings.ContainsRune(header, ';'):
		return ';'
	case strings.ContainsRune(header, ','):
		return ','
	default:
		return ';'
	}
}

// SniffDelimiter reads only the first line of rs, detects its delimiter and
// seeks rs back to the start so the header can be consumed again by a record
// reader. An empty input yields ';'.
func SniffDelimiter(rs io.ReadSeeker) (rune, error) {
	br := bufio.NewReader(NewBOMReader(rs))
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("csv: read header line: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("csv: rewind after sniff: %w", err)
	}
	return DetectDelimiter(line), nil
}

// NewReader returns an encoding/csv reader over r with the given delimiter.
// The BOM is dropped, quotes are parsed leniently and rows may have any width;
// callers decide what a short or long row means.
func NewReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(NewBOMReader(r))
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	return cr
}

// ReadHeader consumes the header record from cr and trims each name. It
// returns io.EOF unchanged for an empty input.
func ReadHeader(cr *csv.Reader) ([]string, error) {
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hdr))
	for i, h := range hdr {
		out[i] = strings.TrimSpace(h)
	}
	return StripHeaderBOM(out), nil
}
