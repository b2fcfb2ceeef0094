package normalize

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/iptvextract/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

var attrRE = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)

type m3uEntry struct {
	extinf string
	group  string // from a preceding #EXTGRP
	url    string
	line   int
}

func parseM3U(body []byte, source string) ([]catalog.Channel, Stats, error) {
	trimmed := trimBOM(body)
	// consumed tracks the bytes the scanner has moved past, terminators
	// included, so offsets stay exact for CRLF and unterminated last lines.
	consumed := int64(len(body) - len(trimmed))
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(nil, maxLineSize)
	sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		adv, tok, err := bufio.ScanLines(data, atEOF)
		consumed += int64(adv)
		return adv, tok, err
	})

	var (
		out     []catalog.Channel
		st      Stats
		pending *m3uEntry
		group   string
		header  bool
		lineNo  int
		offset  = consumed
	)
	skip := func(e *m3uEntry, reason string) {
		st.Skipped++
		log.WithFields(log.Fields{"source": source, "line": e.line}).Warnf("skipping playlist entry: %s", reason)
	}
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		lineStart := offset
		offset = consumed
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !header {
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, st, &ParseError{Source: source, Reason: "missing #EXTM3U header", Offset: lineStart}
			}
			header = true
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			st.Entries++
			if pending != nil {
				skip(pending, "no stream URL")
			}
			pending = &m3uEntry{extinf: line, group: group, line: lineNo}
			group = ""
		case strings.HasPrefix(line, "#EXTGRP:"):
			group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			if pending != nil {
				pending.group = group
				group = ""
			}
		case strings.HasPrefix(line, "#"):
			// #EXTVLCOPT, #KODIPROP and comments.
		default:
			if pending == nil {
				st.Entries++
				skip(&m3uEntry{line: lineNo}, "stream URL without #EXTINF")
				continue
			}
			pending.url = line
			if ch, ok := m3uChannel(pending); ok {
				out = append(out, ch)
			} else {
				skip(pending, "entry has no name")
			}
			pending = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, st, &ParseError{Source: source, Reason: err.Error(), Offset: offset}
	}
	if !header {
		return nil, st, &ParseError{Source: source, Reason: "missing #EXTM3U header"}
	}
	if pending != nil {
		skip(pending, "no stream URL")
	}
	return out, st, nil
}

func m3uChannel(e *m3uEntry) (catalog.Channel, bool) {
	attrs, title := splitEXTINF(e.extinf)
	name := title
	if name == "" {
		name = attrs["tvg-name"]
	}
	if name == "" {
		return catalog.Channel{}, false
	}
	ch := catalog.Channel{
		Name:      name,
		StreamURL: e.url,
		TVGID:     attrs["tvg-id"],
		Origin:    catalog.OriginPlaylist,
		Logo:      attrs["tvg-logo"],
		Radio:     strings.EqualFold(attrs["radio"], "true"),
	}
	if v, ok := attrs["tvg-language"]; ok {
		ch.Language = catalog.Str(v)
	}
	if v, ok := attrs["tvg-country"]; ok {
		ch.Country = catalog.Str(v)
	}
	if v, ok := attrs["group-title"]; ok && v != "" {
		ch.Category = catalog.Str(v)
	} else if e.group != "" {
		ch.Category = catalog.Str(e.group)
	} else if ok {
		ch.Category = catalog.Str(v)
	}
	return ch, true
}

// splitEXTINF returns the quoted attributes of an #EXTINF line and the display
// name after the first comma that is not inside quotes.
func splitEXTINF(extinf string) (map[string]string, string) {
	comma := -1
	inQuote := false
	for i := 0; i < len(extinf) && comma < 0; i++ {
		switch extinf[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				comma = i
			}
		}
	}
	head, title := extinf, ""
	if comma >= 0 {
		head, title = extinf[:comma], strings.TrimSpace(extinf[comma+1:])
	}
	attrs := make(map[string]string)
	for _, m := range attrRE.FindAllStringSubmatch(head, -1) {
		attrs[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
	}
	return attrs, title
}
