package guide

import (
	"sort"
	"time"

	"github.com/snapetech/iptvextract/internal/catalog"
)

// Stats summarizes one Build.
type Stats struct {
	Matched   int            // channels whose programmes came from the guide source
	Synthetic int            // channels that got filler blocks
	Methods   map[string]int // match method -> channel count
	Dropped   int            // guide programmes outside the window or overlapping an earlier one
}

// Build produces the schedule for chans, which must already carry IDs.
// Channels matched in epg get that source's programmes inside the window,
// re-keyed to the channel ID, sorted and with overlaps removed (the earlier
// programme wins). Every other channel, and any matched channel left with no
// programmes, gets synthetic blocks. A nil epg yields a fully synthetic
// schedule. Output is grouped by channel in input order.
func Build(chans []catalog.Channel, epg *EPG, opts Options) ([]catalog.Programme, Stats, error) {
	st := Stats{Methods: map[string]int{}}
	if err := opts.Validate(); err != nil {
		return nil, st, err
	}
	winStart, winEnd := opts.Window()
	days := opts.horizon()

	var matcher *Matcher
	if epg != nil {
		matcher = NewMatcher(epg, opts.matchKey(), opts.Mapping)
	}
	out := make([]catalog.Programme, 0, len(chans)*days*len(dailyBlocks))
	for _, ch := range chans {
		if matcher != nil {
			if gid, method, ok := matcher.Match(ch); ok {
				progs, dropped := merged(ch, epg.Programmes[gid], winStart, winEnd)
				st.Dropped += dropped
				if len(progs) > 0 {
					st.Matched++
					st.Methods[string(method)]++
					out = append(out, progs...)
					continue
				}
			}
		}
		st.Synthetic++
		out = append(out, syntheticFor(ch, winStart, days)...)
	}
	return out, st, nil
}

// merged re-keys src to ch.ID and returns the programmes overlapping
// [winStart, winEnd) in start order without overlaps. src is not modified.
func merged(ch catalog.Channel, src []catalog.Programme, winStart, winEnd time.Time) ([]catalog.Programme, int) {
	if len(src) == 0 {
		return nil, 0
	}
	progs := make([]catalog.Programme, len(src))
	copy(progs, src)
	sort.SliceStable(progs, func(i, j int) bool { return progs[i].Start.Before(progs[j].Start) })

	// Fill missing stop times from the next start.
	for i := range progs {
		if !progs[i].Stop.IsZero() {
			continue
		}
		if i+1 < len(progs) && progs[i+1].Start.After(progs[i].Start) {
			progs[i].Stop = progs[i+1].Start
		}
	}

	out := make([]catalog.Programme, 0, len(progs))
	dropped := 0
	var lastStop time.Time
	for _, p := range progs {
		if p.Stop.IsZero() || !p.Stop.After(winStart) || !p.Start.Before(winEnd) {
			dropped++
			continue
		}
		if !lastStop.IsZero() && p.Start.Before(lastStop) {
			dropped++
			continue
		}
		p.ChannelID = ch.ID
		if p.Title == "" {
			p.Title = ch.Name
		}
		if p.Description != nil {
			p.Description = catalog.Str(*p.Description)
		}
		out = append(out, p)
		lastStop = p.Stop
	}
	return out, dropped
}
