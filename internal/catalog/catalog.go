// Package catalog holds the records passed between pipeline stages.
package catalog

import (
	"strings"
	"time"
)

// Channel is one live channel. Candidates coming out of normalization have
// Ordinal == 0 and ID == ""; both are set by the assign stage.
//
// Language, Country and Category are nil when the source did not carry the
// field at all and point at "" when it carried an empty value.
type Channel struct {
	Name      string
	StreamURL string
	Language  *string
	Country   *string
	Category  *string

	TVGID  string   // external key from the source (tvg-id, nanoid, catalog id)
	Origin Origin   // kind of document the entry came from
	Logo   string   // optional logo URL
	Radio  bool     // source marked the entry as audio-only
	NSFW   bool     // source flagged the entry as adult content
	Web    []string // page links (YouTube etc.) that are not direct streams

	Ordinal int    // 1-based tuning number
	ID      string // stable guide/playlist identifier
}

// Origin is the kind of document a channel was parsed from. A playlist TVGID
// is an XMLTV-style tvg-id; a catalog TVGID is an opaque key such as a nanoid.
type Origin string

const (
	OriginCatalog  Origin = "catalog"
	OriginPlaylist Origin = "playlist"
)

// Programme is one scheduled block in the guide.
type Programme struct {
	ChannelID   string
	Start       time.Time
	Stop        time.Time
	Title       string
	Description *string
}

// Run is the complete output of one pipeline execution.
type Run struct {
	Channels    []Channel
	Programmes  []Programme
	GeneratedAt time.Time
}

// Str returns a pointer to s. Use it for fields that are present in the source.
func Str(s string) *string { return &s }

// Value dereferences an optional field, returning "" when absent.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// GroupTitle is the playlist group: the upper-cased country when present and
// non-empty, otherwise the category.
func (c Channel) GroupTitle() string {
	if v := strings.TrimSpace(Value(c.Country)); v != "" {
		return strings.ToUpper(v)
	}
	return strings.TrimSpace(Value(c.Category))
}

// Clone returns a copy of c that shares no slices with the original.
func (c Channel) Clone() Channel {
	out := c
	if c.Web != nil {
		out.Web = append([]string(nil), c.Web...)
	}
	return out
}
