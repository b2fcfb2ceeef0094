package guide

import (
	"time"

	"github.com/snapetech/iptvextract/internal/catalog"
)

const (
	morningHour   = 6
	afternoonHour = 12
	eveningHour   = 18
)

// block is one fixed daily slot. endDay is 1 when the slot ends on the next day.
type block struct {
	name      string
	startHour int
	endHour   int
	endDay    int
}

var dailyBlocks = []block{
	{"Morning", morningHour, afternoonHour, 0},
	{"Afternoon", afternoonHour, eveningHour, 0},
	{"Evening", eveningHour, morningHour, 1},
}

// BlockTitle is the synthetic programme title for a channel and block name.
func BlockTitle(channelName, blockName string) string {
	return channelName + " - " + blockName + " Programming"
}

// Synthetic returns three contiguous blocks per day over the horizon for
// every channel, grouped by channel in input order. Blocks are built from
// wall-clock times in the configured zone, so a day that crosses a DST change
// is 23 or 25 hours long and still has no gap.
func Synthetic(chans []catalog.Channel, opts Options) ([]catalog.Programme, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start, _ := opts.Window()
	out := make([]catalog.Programme, 0, len(chans)*opts.horizon()*len(dailyBlocks))
	for _, ch := range chans {
		out = append(out, syntheticFor(ch, start, opts.horizon())...)
	}
	return out, nil
}

func syntheticFor(ch catalog.Channel, start time.Time, days int) []catalog.Programme {
	loc := start.Location()
	y, m, d := start.Date()
	out := make([]catalog.Programme, 0, days*len(dailyBlocks))
	for day := 0; day < days; day++ {
		for _, b := range dailyBlocks {
			out = append(out, catalog.Programme{
				ChannelID: ch.ID,
				Start:     time.Date(y, m, d+day, b.startHour, 0, 0, 0, loc),
				Stop:      time.Date(y, m, d+day+b.endDay, b.endHour, 0, 0, 0, loc),
				Title:     BlockTitle(ch.Name, b.name),
			})
		}
	}
	return out
}
