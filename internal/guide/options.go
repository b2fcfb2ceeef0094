// Package guide builds the programme schedule: synthetic filler blocks, or
// programmes merged from an XMLTV source with synthetic fallback per channel.
package guide

import (
	"fmt"
	"strings"
	"time"

	"github.com/snapetech/iptvextract/internal/config"
)

// DefaultHorizonDays is the schedule length when Options.HorizonDays is 0.
const DefaultHorizonDays = 7

// MatchKey selects how pipeline channels are joined to guide channels.
type MatchKey string

const (
	MatchAuto    MatchKey = "auto"    // mapping, then tvg-id, then name
	MatchName    MatchKey = "name"    // normalized display name only
	MatchTVGID   MatchKey = "tvg-id"  // exact tvg-id only
	MatchMapping MatchKey = "mapping" // explicit mapping only
)

// Options configures Synthetic and Build.
type Options struct {
	HorizonDays int
	Timezone    string    // IANA name; "" = UTC
	Now         time.Time // zero = time.Now()
	MatchKey    MatchKey  // "" = auto
	Mapping     map[string]string
}

// Validate reports the first invalid setting as a *config.ConfigError.
func (o Options) Validate() error {
	if o.HorizonDays < 0 || o.HorizonDays > config.MaxHorizonDays {
		return &config.ConfigError{Field: "horizon_days", Reason: fmt.Sprintf("%d out of range 1..%d", o.HorizonDays, config.MaxHorizonDays)}
	}
	if _, err := o.location(); err != nil {
		return &config.ConfigError{Field: "timezone", Reason: err.Error()}
	}
	switch o.matchKey() {
	case MatchAuto, MatchName, MatchTVGID:
	case MatchMapping:
		if len(o.Mapping) == 0 {
			return &config.ConfigError{Field: "epg_match", Reason: "mapping match key needs a non-empty mapping"}
		}
	default:
		return &config.ConfigError{Field: "epg_match", Reason: fmt.Sprintf("unknown match key %q", o.MatchKey)}
	}
	return nil
}

func (o Options) horizon() int {
	if o.HorizonDays == 0 {
		return DefaultHorizonDays
	}
	return o.HorizonDays
}

func (o Options) location() (*time.Location, error) {
	if strings.TrimSpace(o.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(o.Timezone)
}

func (o Options) matchKey() MatchKey {
	if o.MatchKey == "" {
		return MatchAuto
	}
	return MatchKey(strings.ToLower(string(o.MatchKey)))
}

// Window is the span the schedule covers: 06:00 on the local day of Now
// through 06:00 HorizonDays later. Call Validate first.
func (o Options) Window() (start, end time.Time) {
	loc, err := o.location()
	if err != nil {
		loc = time.UTC
	}
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	local := now.In(loc)
	y, m, d := local.Date()
	start = time.Date(y, m, d, morningHour, 0, 0, 0, loc)
	end = time.Date(y, m, d+o.horizon(), morningHour, 0, 0, 0, loc)
	return start, end
}
