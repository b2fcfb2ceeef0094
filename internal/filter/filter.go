// Package filter drops candidate channels that cannot be played directly,
// match the deny lexicon, are radio stations, or repeat an accepted stream.
package filter

import (
	"strings"
	"unicode"

	"github.com/snapetech/iptvextract/internal/catalog"
	"github.com/snapetech/iptvextract/internal/safeurl"
)

// Reason says why a channel was dropped.
type Reason string

const (
	ReasonNoStream  Reason = "no_stream"
	ReasonNonDirect Reason = "non_direct"
	ReasonDenied    Reason = "denied"
	ReasonRadio     Reason = "radio"
	ReasonDuplicate Reason = "duplicate"
)

// Reasons lists every Reason in rule order.
var Reasons = []Reason{ReasonNoStream, ReasonNonDirect, ReasonDenied, ReasonRadio, ReasonDuplicate}

// Rules configures Apply.
type Rules struct {
	DenyTerms        []string
	Exceptions       []string
	DenyIDPrefixes   []string // matched against playlist tvg-ids only
	RadioTerms       []string
	ExcludeRadio     bool
	NonDirectHosts   []string
	ExcludeNonDirect bool
}

// DefaultRules returns the built-in lexicons with radio and non-direct
// exclusion enabled.
func DefaultRules() Rules {
	return Rules{
		DenyTerms:        append([]string(nil), DefaultDenyTerms...),
		Exceptions:       append([]string(nil), DefaultExceptions...),
		DenyIDPrefixes:   append([]string(nil), DefaultDenyIDPrefixes...),
		RadioTerms:       append([]string(nil), DefaultRadioTerms...),
		ExcludeRadio:     true,
		NonDirectHosts:   append([]string(nil), DefaultNonDirectHosts...),
		ExcludeNonDirect: true,
	}
}

// Result is the outcome of Apply.
type Result struct {
	Kept    []catalog.Channel
	Dropped map[Reason]int
}

// DroppedTotal sums Dropped.
func (r Result) DroppedTotal() int {
	n := 0
	for _, v := range r.Dropped {
		n += v
	}
	return n
}

// Apply returns the channels that pass every rule, in input order. Rules run
// in order and the first failing one decides the drop reason. The input slice
// is not modified.
func Apply(chans []catalog.Channel, rules Rules) Result {
	m := compile(rules)
	res := Result{Kept: make([]catalog.Channel, 0, len(chans)), Dropped: make(map[Reason]int)}
	seen := make(map[string]struct{}, len(chans))
	for _, ch := range chans {
		if reason, drop := m.check(ch); drop {
			res.Dropped[reason]++
			continue
		}
		key := strings.TrimSpace(ch.StreamURL)
		if _, dup := seen[key]; dup {
			res.Dropped[ReasonDuplicate]++
			continue
		}
		seen[key] = struct{}{}
		res.Kept = append(res.Kept, ch.Clone())
	}
	return res
}

type matcher struct {
	rules      Rules
	deny       []string
	exceptions []string
	idPrefixes []string
	radio      []string
}

func compile(r Rules) *matcher {
	return &matcher{
		rules:      r,
		deny:       lowerAll(r.DenyTerms),
		exceptions: lowerAll(r.Exceptions),
		idPrefixes: lowerAll(r.DenyIDPrefixes),
		radio:      lowerAll(r.RadioTerms),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// check applies every rule except duplicate detection.
func (m *matcher) check(ch catalog.Channel) (Reason, bool) {
	stream := strings.TrimSpace(ch.StreamURL)
	if stream == "" {
		if len(ch.Web) > 0 {
			return ReasonNonDirect, true
		}
		return ReasonNoStream, true
	}
	if !safeurl.IsPlayable(stream) {
		return ReasonNoStream, true
	}
	if m.rules.ExcludeNonDirect && m.nonDirect(stream) {
		return ReasonNonDirect, true
	}
	if ch.NSFW || m.denied(ch) {
		return ReasonDenied, true
	}
	if m.rules.ExcludeRadio && (ch.Radio || m.isRadio(ch)) {
		return ReasonRadio, true
	}
	return "", false
}

func (m *matcher) nonDirect(stream string) bool {
	host := safeurl.Host(stream)
	for _, d := range m.rules.NonDirectHosts {
		if safeurl.HostMatches(host, d) {
			return true
		}
	}
	return false
}

// denied matches the lexicon against the name and category (the M3U group).
// Catalog keys are opaque and never inspected; playlist tvg-ids are checked
// only against the dotted id prefixes.
func (m *matcher) denied(ch catalog.Channel) bool {
	if ch.Origin == catalog.OriginPlaylist {
		id := strings.ToLower(strings.TrimSpace(ch.TVGID))
		for _, p := range m.idPrefixes {
			if id != "" && strings.HasPrefix(id, p) {
				return true
			}
		}
	}
	for _, f := range []string{ch.Name, catalog.Value(ch.Category)} {
		if f == "" {
			continue
		}
		text := m.mask(strings.ToLower(f))
		for _, term := range m.deny {
			if strings.Contains(text, term) {
				return true
			}
		}
	}
	return false
}

// mask blanks out exception phrases so "Adult Swim" or "BBC Essex" do not
// trip the deny terms they contain.
func (m *matcher) mask(text string) string {
	for _, ex := range m.exceptions {
		if strings.Contains(text, ex) {
			text = strings.ReplaceAll(text, ex, " ")
		}
	}
	return text
}

func (m *matcher) isRadio(ch catalog.Channel) bool {
	for _, f := range []string{ch.Name, catalog.Value(ch.Category)} {
		words := strings.FieldsFunc(strings.ToLower(f), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			for _, term := range m.radio {
				if w == term {
					return true
				}
			}
		}
	}
	return false
}
