// Package assign numbers filtered channels and gives each a stable ID.
package assign

import (
	"strings"

	"github.com/google/uuid"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// Namespace scopes channel IDs so they cannot collide with UUIDv5 values
// derived the same way by other tools.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/snapetech/iptvextract/channel"))

// StableID derives a channel ID from its name and stream URL. Identical input
// gives an identical ID on every run; whitespace around either value and the
// case of the name are ignored.
func StableID(name, streamURL string) string {
	key := strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.TrimSpace(streamURL)
	return uuid.NewSHA1(Namespace, []byte(key)).String()
}

// Assign returns a copy of chans with Ordinal set to 1..N in input order and
// ID set by StableID. It never reorders.
func Assign(chans []catalog.Channel) []catalog.Channel {
	out := make([]catalog.Channel, len(chans))
	for i, ch := range chans {
		c := ch.Clone()
		c.Ordinal = i + 1
		c.ID = StableID(c.Name, c.StreamURL)
		out[i] = c
	}
	return out
}
