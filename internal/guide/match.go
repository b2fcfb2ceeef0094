package guide

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// Method records how a channel was matched to guide data.
type Method string

const (
	MethodMapping    Method = "mapping"
	MethodTVGIDExact Method = "tvg_id_exact"
	MethodNameExact  Method = "name_exact"
)

// NormalizeName performs a conservative normalization for deterministic channel
// matching. It removes punctuation/spacing noise, strips common quality and
// region tokens, and lowercases.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	toks := strings.Fields(b.String())
	out := toks[:0]
	for _, t := range toks {
		if _, drop := nameNoise[t]; drop {
			continue
		}
		out = append(out, t)
	}
	joined := strings.Join(out, "")
	return strings.ReplaceAll(joined, "channel", "")
}

var nameNoise = map[string]struct{}{
	"hd": {}, "uhd": {}, "fhd": {}, "sd": {}, "4k": {}, "1080p": {}, "720p": {},
	"us": {}, "usa": {}, "uk": {}, "ca": {}, "canada": {},
	"hq": {}, "backup": {}, "raw": {}, "live": {}, "tv": {},
}

// LoadMapping reads a JSON object of channel name or tvg-id to guide
// channel id.
func LoadMapping(r io.Reader) (map[string]string, error) {
	var raw map[string]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("guide mapping: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// LoadMappingFile is LoadMapping on a file path.
func LoadMappingFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("guide mapping: %w", err)
	}
	defer f.Close()
	return LoadMapping(f)
}

// Matcher joins pipeline channels to guide channel ids.
type Matcher struct {
	key     MatchKey
	byID    map[string]string // lower-cased guide id -> guide id
	byName  map[string]string // normalized name -> guide id; "" = ambiguous
	mapping map[string]string // lower-cased tvg-id or normalized name -> guide id
}

// NewMatcher indexes epg for the given key and mapping.
func NewMatcher(epg *EPG, key MatchKey, mapping map[string]string) *Matcher {
	m := &Matcher{
		key:     key,
		byID:    map[string]string{},
		byName:  map[string]string{},
		mapping: map[string]string{},
	}
	if m.key == "" {
		m.key = MatchAuto
	}
	addID := func(id string) {
		k := strings.ToLower(strings.TrimSpace(id))
		if _, seen := m.byID[k]; k != "" && !seen {
			m.byID[k] = id
		}
	}
	addName := func(name, id string) {
		nk := NormalizeName(name)
		if nk == "" {
			return
		}
		if existing, ok := m.byName[nk]; ok && existing != id {
			m.byName[nk] = ""
			return
		}
		m.byName[nk] = id
	}
	if epg != nil {
		for _, ch := range epg.Channels {
			addID(ch.ID)
			addName(ch.ID, ch.ID)
			for _, n := range ch.DisplayNames {
				addName(n, ch.ID)
			}
		}
		// Feeds sometimes carry programmes for channels they never declare.
		for id := range epg.Programmes {
			addID(id)
		}
	}
	for k, v := range mapping {
		m.mapping[strings.ToLower(k)] = v
		if nk := NormalizeName(k); nk != "" {
			m.mapping[nk] = v
		}
	}
	return m
}

// Match returns the guide channel id for ch, or ok == false.
func (m *Matcher) Match(ch catalog.Channel) (id string, method Method, ok bool) {
	try := func(k MatchKey) bool { return m.key == MatchAuto || m.key == k }
	if try(MatchMapping) {
		for _, k := range []string{strings.ToLower(strings.TrimSpace(ch.TVGID)), NormalizeName(ch.Name)} {
			if k == "" {
				continue
			}
			if v, found := m.mapping[k]; found {
				if gid, known := m.byID[strings.ToLower(v)]; known {
					return gid, MethodMapping, true
				}
			}
		}
	}
	if try(MatchTVGID) {
		if tid := strings.ToLower(strings.TrimSpace(ch.TVGID)); tid != "" {
			if gid, found := m.byID[tid]; found {
				return gid, MethodTVGIDExact, true
			}
		}
	}
	if try(MatchName) {
		if nk := NormalizeName(ch.Name); nk != "" {
			if gid := m.byName[nk]; gid != "" {
				return gid, MethodNameExact, true
			}
		}
	}
	return "", "", false
}
