// Package pipeline runs one extraction: fetch, normalize, filter, assign,
// build the guide, and publish the playlist and guide files.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/iptvextract/internal/assign"
	"github.com/snapetech/iptvextract/internal/catalog"
	"github.com/snapetech/iptvextract/internal/config"
	"github.com/snapetech/iptvextract/internal/fetch"
	"github.com/snapetech/iptvextract/internal/filter"
	"github.com/snapetech/iptvextract/internal/guide"
	"github.com/snapetech/iptvextract/internal/metrics"
	"github.com/snapetech/iptvextract/internal/normalize"
	"github.com/snapetech/iptvextract/internal/output"
)

// Source is one primary document and its declared format.
type Source struct {
	URL    string
	Format normalize.Format
}

// Options is everything one run needs. Output paths are values here, not
// package state, so several configurations can run side by side.
type Options struct {
	Sources []Source
	EPGURL  string // optional

	Fetcher *fetch.Fetcher
	Rules   filter.Rules
	Guide   guide.Options

	PlaylistPath string
	GuidePath    string

	Metrics     *metrics.Recorder // optional
	MetricsPath string            // textfile; "" = do not write
}

// Summary reports what a run did.
type Summary struct {
	Fetched        int            // candidate channels after parsing
	Parsed         int            // entries seen across all documents
	Skipped        int            // malformed entries skipped
	Dropped        map[string]int // filter reason -> count
	Written        int            // channels published
	Programmes     int
	EPGMatched     int
	EPGSynthetic   int
	EPGUnavailable bool // a guide source was configured but could not be used
	PlaylistBytes  int64
	GuideBytes     int64
	Duration       time.Duration
}

// Validate checks Options without doing any I/O.
func (o Options) Validate() error {
	if len(o.Sources) == 0 {
		return &config.ConfigError{Field: "sources", Reason: "no catalog or M3U URL configured"}
	}
	for _, s := range o.Sources {
		if strings.TrimSpace(s.URL) == "" {
			return &config.ConfigError{Field: "sources", Reason: "empty source URL"}
		}
	}
	if o.PlaylistPath == "" || o.GuidePath == "" {
		return &config.ConfigError{Field: "outputs", Reason: "playlist and guide paths are required"}
	}
	if o.PlaylistPath == o.GuidePath {
		return &config.ConfigError{Field: "outputs", Reason: "playlist and guide must be different files"}
	}
	return o.Guide.Validate()
}

// Run executes the pipeline once. It either publishes both files and returns
// a Summary, or returns an error and leaves previously published files as
// they were.
func Run(ctx context.Context, opts Options) (Summary, error) {
	start := time.Now()
	sum, err := run(ctx, opts)
	sum.Duration = time.Since(start)
	if err != nil {
		log.WithField("category", Category(err)).WithError(err).Error("run failed")
		if opts.Metrics != nil {
			opts.Metrics.Failure(Category(err), sum.Duration)
		}
	} else {
		log.WithFields(log.Fields{
			"fetched":    sum.Fetched,
			"skipped":    sum.Skipped,
			"dropped":    sum.droppedTotal(),
			"written":    sum.Written,
			"programmes": sum.Programmes,
			"epg":        sum.EPGMatched,
			"synthetic":  sum.EPGSynthetic,
			"duration":   sum.Duration.Round(time.Millisecond),
		}).Info("run complete")
		if opts.Metrics != nil {
			opts.Metrics.Success(sum.metricsRun(), time.Now())
		}
	}
	if opts.Metrics != nil && opts.MetricsPath != "" {
		if werr := opts.Metrics.WriteTextfile(opts.MetricsPath); werr != nil {
			log.WithError(werr).Warn("metrics textfile not written")
		}
	}
	return sum, err
}

func run(ctx context.Context, opts Options) (Summary, error) {
	sum := Summary{Dropped: map[string]int{}}
	if err := opts.Validate(); err != nil {
		return sum, err
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = &fetch.Fetcher{}
	}

	urls := make([]string, len(opts.Sources))
	for i, s := range opts.Sources {
		urls[i] = s.URL
	}
	res, err := fetcher.FetchAll(ctx, urls, opts.EPGURL)
	if err != nil {
		return sum, err
	}

	var (
		candidates []catalog.Channel
		total      normalize.Stats
	)
	for i, doc := range res.Primary {
		chans, st, err := normalize.Parse(doc, opts.Sources[i].Format)
		if err != nil {
			return sum, err
		}
		log.WithFields(log.Fields{"source": doc.URL, "bytes": doc.Size, "entries": st.Entries, "skipped": st.Skipped}).Debug("parsed source")
		total.Add(st)
		candidates = append(candidates, chans...)
	}
	sum.Parsed, sum.Skipped = total.Entries, total.Skipped
	sum.Fetched = len(candidates)

	filtered := filter.Apply(candidates, opts.Rules)
	for _, reason := range filter.Reasons {
		sum.Dropped[string(reason)] = filtered.Dropped[reason]
	}
	channels := assign.Assign(filtered.Kept)

	epg := loadEPG(opts.EPGURL, res)
	sum.EPGUnavailable = opts.EPGURL != "" && epg == nil
	programmes, gst, err := guide.Build(channels, epg, opts.Guide)
	if err != nil {
		return sum, err
	}
	sum.EPGMatched, sum.EPGSynthetic = gst.Matched, gst.Synthetic
	if epg != nil {
		log.WithFields(log.Fields{"matched": gst.Matched, "synthetic": gst.Synthetic, "methods": gst.Methods, "dropped": gst.Dropped}).Info("guide merged")
	}

	runOut := catalog.Run{Channels: channels, Programmes: programmes, GeneratedAt: time.Now().UTC()}
	if err := publish(opts, runOut, &sum); err != nil {
		return sum, err
	}
	sum.Written = len(channels)
	sum.Programmes = len(programmes)
	return sum, nil
}

// loadEPG parses the fetched guide. Any failure degrades to a synthetic-only
// schedule.
func loadEPG(url string, res *fetch.Result) *guide.EPG {
	if url == "" {
		return nil
	}
	if res.EPGErr != nil || res.EPG == nil {
		log.WithField("source", url).WithError(res.EPGErr).Warn("guide source unavailable; using synthetic schedule")
		return nil
	}
	epg, err := guide.ParseXMLTV(bytes.NewReader(res.EPG.Body))
	if err != nil {
		log.WithField("source", url).WithError(err).Warn("guide source unreadable; using synthetic schedule")
		return nil
	}
	log.WithFields(log.Fields{"source": url, "channels": len(epg.Channels), "programmes": epg.ProgrammeCount(), "skipped": epg.Skipped}).Debug("parsed guide source")
	return epg
}

// publish writes both files to temporaries first so a failure in either
// leaves both published files untouched. If the guide cannot be renamed into
// place after the playlist was, the previous playlist is put back.
func publish(opts Options, run catalog.Run, sum *Summary) error {
	playlist, err := output.Prepare(opts.PlaylistPath, func(w io.Writer) error {
		return output.EncodePlaylist(w, run.Channels)
	})
	if err != nil {
		return err
	}
	defer playlist.Discard()
	guideFile, err := output.Prepare(opts.GuidePath, func(w io.Writer) error {
		return output.EncodeGuide(w, run)
	})
	if err != nil {
		return err
	}
	defer guideFile.Discard()

	prev, err := output.Save(opts.PlaylistPath)
	if err != nil {
		return err
	}
	defer prev.Drop()
	if err := playlist.Commit(); err != nil {
		return err
	}
	if err := guideFile.Commit(); err != nil {
		if rerr := prev.Restore(); rerr != nil {
			log.WithError(rerr).Error("could not restore previous playlist")
			return fmt.Errorf("%w (playlist left at new version)", err)
		}
		return err
	}
	sum.PlaylistBytes, sum.GuideBytes = playlist.Size(), guideFile.Size()
	return nil
}

// Category names the class of a run error for logs and metrics:
// fetch, parse, config, write or unknown.
func Category(err error) string {
	var (
		fe *fetch.FetchError
		pe *normalize.ParseError
		ce *config.ConfigError
		we *output.WriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return "config"
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &we):
		return "write"
	}
	return "unknown"
}

func (s Summary) droppedTotal() int {
	n := 0
	for _, v := range s.Dropped {
		n += v
	}
	return n
}

func (s Summary) metricsRun() metrics.Run {
	return metrics.Run{
		Fetched:       s.Fetched,
		Skipped:       s.Skipped,
		Kept:          s.Written,
		Dropped:       s.Dropped,
		Matched:       s.EPGMatched,
		Synthetic:     s.EPGSynthetic,
		Programmes:    s.Programmes,
		PlaylistBytes: s.PlaylistBytes,
		GuideBytes:    s.GuideBytes,
		Duration:      s.Duration,
	}
}
