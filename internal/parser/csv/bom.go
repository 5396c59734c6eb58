// Package csv holds the delimited-text plumbing shared by the cleaner and the
// loader: BOM-tolerant UTF-8 decoding, header-based delimiter sniffing and a
// preconfigured encoding/csv reader.
package csv

import (
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const utf8BOM = "\uFEFF"

// NewBOMReader decodes r as UTF-8 and drops a leading byte-order mark. A
// UTF-16 BOM switches the decoder to UTF-16. Invalid UTF-8 sequences are
// replaced with U+FFFD.
func NewBOMReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
// Readers built with NewBOMReader never need it; it covers headers obtained
// from other sources.
func StripHeaderBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}
