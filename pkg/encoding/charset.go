// Package encoding provides text encoding utilities for PSSG XML documents.
package encoding

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CharsetReader returns a reader that converts input from the named charset
// to UTF-8. It matches the signature of xml.Decoder.CharsetReader, which is
// only consulted for non-UTF-8 declarations.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(normalizeLabel(label))
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// normalizeLabel trims exporter quirks such as surrounding spaces or an
// upper-case label.
func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
