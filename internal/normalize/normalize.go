// Package normalize turns fetched catalog and playlist documents into
// candidate channel records.
package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/snapetech/iptvextract/internal/catalog"
	"github.com/snapetech/iptvextract/internal/fetch"
)

// Format is a declared source document format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatM3U  Format = "m3u"
)

// ParseFormat accepts "json", "m3u" (or "m3u8") and "auto"/"".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "json":
		return FormatJSON, nil
	case "m3u", "m3u8":
		return FormatM3U, nil
	}
	return "", fmt.Errorf("unknown source format %q", s)
}

// ParseError reports a document that is structurally invalid as a whole.
type ParseError struct {
	Source string
	Reason string
	Offset int64 // byte offset into the document
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("parse: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("parse %s: %s at offset %d", e.Source, e.Reason, e.Offset)
}

// Stats counts entries seen in one document and how many were skipped.
type Stats struct {
	Entries int
	Skipped int
}

// Add accumulates s2 into s.
func (s *Stats) Add(s2 Stats) {
	s.Entries += s2.Entries
	s.Skipped += s2.Skipped
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

func trimBOM(b []byte) []byte { return bytes.TrimPrefix(b, utf8BOM) }

// Detect guesses the format of doc from its first significant bytes, then its
// Content-Type. It returns FormatAuto when neither is conclusive.
func Detect(doc *fetch.Document) Format {
	body := bytes.TrimLeft(trimBOM(doc.Body), " \t\r\n")
	switch {
	case bytes.HasPrefix(body, []byte("#EXTM3U")):
		return FormatM3U
	case len(body) > 0 && (body[0] == '[' || body[0] == '{'):
		return FormatJSON
	}
	ct := strings.ToLower(doc.ContentType)
	switch {
	case strings.Contains(ct, "json"):
		return FormatJSON
	case strings.Contains(ct, "mpegurl"):
		return FormatM3U
	}
	return FormatAuto
}

// Parse extracts candidate channels from doc. Malformed individual entries are
// skipped with a warning and counted in Stats; a malformed document returns
// a *ParseError.
func Parse(doc *fetch.Document, format Format) ([]catalog.Channel, Stats, error) {
	if format == FormatAuto || format == "" {
		format = Detect(doc)
	}
	var (
		chans []catalog.Channel
		st    Stats
		err   error
	)
	switch format {
	case FormatJSON:
		chans, st, err = parseJSON(doc.Body, doc.URL)
	case FormatM3U:
		chans, st, err = parseM3U(doc.Body, doc.URL)
	default:
		return nil, Stats{}, &ParseError{Source: doc.URL, Reason: "unrecognized document format"}
	}
	if err != nil {
		return nil, st, err
	}
	return chans, st, nil
}
