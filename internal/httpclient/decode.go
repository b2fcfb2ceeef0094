package httpclient

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// MaxBodySize caps a decoded response body. Country catalogs are a few hundred
// KiB; full XMLTV feeds can reach tens of MiB.
const MaxBodySize = 256 << 20

// AcceptEncoding is sent on every fetch. Setting it by hand disables the
// transport's transparent gzip handling, so Decode must handle both.
const AcceptEncoding = "gzip, br"

var gzipMagic = []byte{0x1f, 0x8b}

// Decode undoes Content-Encoding (gzip, br). Bodies that start with the gzip
// magic are gunzipped even without the header, which covers .xml.gz guides
// served as application/octet-stream.
func Decode(body []byte, contentEncoding string) ([]byte, error) {
	enc := strings.ToLower(strings.TrimSpace(contentEncoding))
	var r io.Reader
	switch {
	case enc == "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case enc == "gzip" || enc == "x-gzip" || bytes.HasPrefix(body, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case enc == "" || enc == "identity":
		return body, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
	out, err := io.ReadAll(io.LimitReader(r, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", enc, err)
	}
	if len(out) > MaxBodySize {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", MaxBodySize)
	}
	return out, nil
}
