package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// Field aliases, in priority order. TV Garden catalogs use nanoid, iptv_urls
// and youtube_urls; other catalogs use the flatter names.
var (
	nameKeys     = []string{"name", "title", "display_name"}
	streamKeys   = []string{"stream_url", "url", "iptv_urls", "urls"}
	webKeys      = []string{"youtube_urls", "web_urls"}
	languageKeys = []string{"language", "languages"}
	countryKeys  = []string{"country"}
	categoryKeys = []string{"category", "categories", "group"}
	keyKeys      = []string{"tvg_id", "nanoid", "id"}
	logoKeys     = []string{"logo", "logo_url"}
	nsfwKeys     = []string{"is_nsfw", "nsfw"}
	radioKeys    = []string{"radio", "is_radio"}
)

func parseJSON(body []byte, source string) ([]catalog.Channel, Stats, error) {
	entries, err := jsonEntries(trimBOM(body))
	if err != nil {
		return nil, Stats{}, jsonParseError(source, err)
	}
	var (
		out []catalog.Channel
		st  = Stats{Entries: len(entries)}
	)
	for i, raw := range entries {
		ch, reason := jsonChannel(raw)
		if reason != "" {
			st.Skipped++
			log.WithFields(log.Fields{"source": source, "entry": i}).Warnf("skipping catalog entry: %s", reason)
			continue
		}
		out = append(out, ch)
	}
	return out, st, nil
}

func jsonEntries(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, &ParseError{Reason: "empty document"}
	}
	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	case '{':
		var wrapper struct {
			Channels []json.RawMessage `json:"channels"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, err
		}
		if wrapper.Channels == nil {
			return nil, &ParseError{Reason: "object has no channels array"}
		}
		return wrapper.Channels, nil
	}
	return nil, &ParseError{Reason: "expected a JSON array or object", Offset: int64(len(body) - len(trimmed))}
}

func jsonParseError(source string, err error) *ParseError {
	var (
		pe  *ParseError
		syn *json.SyntaxError
		typ *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &pe):
	case errors.As(err, &syn):
		pe = &ParseError{Reason: "malformed JSON: " + syn.Error(), Offset: syn.Offset}
	case errors.As(err, &typ):
		pe = &ParseError{Reason: "unexpected JSON " + typ.Value, Offset: typ.Offset}
	default:
		pe = &ParseError{Reason: err.Error()}
	}
	pe.Source = source
	return pe
}

// jsonChannel maps one entry. A non-empty reason means the entry is skipped.
func jsonChannel(raw json.RawMessage) (catalog.Channel, string) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return catalog.Channel{}, "entry is not an object"
	}
	name, _ := field(m, nameKeys...)
	if name == "" {
		return catalog.Channel{}, "entry has no name"
	}
	stream, _ := field(m, streamKeys...)
	key, _ := field(m, keyKeys...)
	logo, _ := field(m, logoKeys...)
	return catalog.Channel{
		Name:      name,
		StreamURL: stream,
		Language:  optional(m, languageKeys...),
		Country:   optional(m, countryKeys...),
		Category:  optional(m, categoryKeys...),
		TVGID:     key,
		Origin:    catalog.OriginCatalog,
		Logo:      logo,
		Radio:     flag(m, radioKeys...),
		NSFW:      flag(m, nsfwKeys...),
		Web:       list(m, webKeys...),
	}, ""
}

// field returns the first non-empty string among keys. Arrays contribute
// their first non-empty string element. found is true when any key was
// present with a string-like value, even an empty one.
func field(m map[string]any, keys ...string) (value string, found bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		s, ok := stringOf(v)
		if !ok {
			continue
		}
		if s != "" {
			return s, true
		}
		found = true
	}
	return "", found
}

func stringOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case json.Number:
		return x.String(), true
	case []any:
		for _, e := range x {
			if s, ok := stringOf(e); ok && s != "" {
				return s, true
			}
		}
		return "", true
	}
	return "", false
}

func optional(m map[string]any, keys ...string) *string {
	if s, ok := field(m, keys...); ok {
		return catalog.Str(s)
	}
	return nil
}

func list(m map[string]any, keys ...string) []string {
	var out []string
	for _, k := range keys {
		switch x := m[k].(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		case []any:
			for _, e := range x {
				if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		}
	}
	return out
}

func flag(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch x := m[k].(type) {
		case bool:
			if x {
				return true
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "1", "true", "yes":
				return true
			}
		case json.Number:
			if x.String() != "0" {
				return true
			}
		}
	}
	return false
}
