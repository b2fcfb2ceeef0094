package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snapetech/iptvextract/internal/assign"
	"github.com/snapetech/iptvextract/internal/config"
	"github.com/snapetech/iptvextract/internal/fetch"
	"github.com/snapetech/iptvextract/internal/filter"
	"github.com/snapetech/iptvextract/internal/guide"
	"github.com/snapetech/iptvextract/internal/httpclient"
	"github.com/snapetech/iptvextract/internal/metrics"
	"github.com/snapetech/iptvextract/internal/normalize"
	"github.com/snapetech/iptvextract/internal/output"
)

const threeEntries = `[
  {"name": "News", "iptv_urls": ["https://cdn.example.com/news.m3u8"], "country": "us"},
  {"name": "No Stream", "iptv_urls": []},
  {"name": "XXX Adult Channel", "iptv_urls": ["https://cdn.example.com/x.m3u8"]}
]`

const twoChannels = `[
  {"name": "Alpha News", "tvg_id": "alpha.us", "iptv_urls": ["https://cdn.example.com/alpha.m3u8"]},
  {"name": "Beta", "iptv_urls": ["https://cdn.example.com/beta.m3u8"]}
]`

const alphaGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="alpha.us"><display-name>Alpha News</display-name></channel>
  <programme start="20240310080000 +0000" stop="20240310090000 +0000" channel="alpha.us"><title>Morning Show</title></programme>
  <programme start="20240310090000 +0000" stop="20240310100000 +0000" channel="alpha.us"><title>Midday</title></programme>
</tv>`

var testNow = time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)

// serve starts a server with fixed bodies per path and counts requests.
func serve(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testOptions(t *testing.T, sources ...Source) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		Sources:      sources,
		Fetcher:      &fetch.Fetcher{Timeout: 2 * time.Second, Retries: 1, Backoff: time.Millisecond},
		Rules:        filter.DefaultRules(),
		Guide:        guide.Options{HorizonDays: 1, Timezone: "UTC", Now: testNow},
		PlaylistPath: filepath.Join(dir, "iptv_playlist.m3u"),
		GuidePath:    filepath.Join(dir, "epg_guide.xml"),
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRun_threeEntryScenario(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/us.json": threeEntries})
	opts := testOptions(t, Source{URL: srv.URL + "/us.json", Format: normalize.FormatJSON})

	sum, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Fetched != 3 || sum.Written != 1 {
		t.Errorf("fetched = %d, written = %d", sum.Fetched, sum.Written)
	}
	if sum.Dropped["no_stream"] != 1 || sum.Dropped["denied"] != 1 {
		t.Errorf("dropped = %v", sum.Dropped)
	}
	for _, r := range filter.Reasons {
		if _, ok := sum.Dropped[string(r)]; !ok {
			t.Errorf("dropped has no %q entry", r)
		}
	}
	if sum.Programmes != 3 || sum.EPGSynthetic != 1 || sum.EPGUnavailable {
		t.Errorf("summary = %+v", sum)
	}

	playlist := readFile(t, opts.PlaylistPath)
	id := assign.StableID("News", "https://cdn.example.com/news.m3u8")
	want := fmt.Sprintf("#EXTM3U\n#EXTINF:-1 tvg-id=%q tvg-chno=\"1\" tvg-name=\"News\" group-title=\"US\",News\nhttps://cdn.example.com/news.m3u8\n", id)
	if playlist != want {
		t.Errorf("playlist:\n%s\nwant:\n%s", playlist, want)
	}
	if int64(len(playlist)) != sum.PlaylistBytes {
		t.Errorf("PlaylistBytes = %d, file is %d", sum.PlaylistBytes, len(playlist))
	}

	g := readFile(t, opts.GuidePath)
	for _, s := range []string{
		`<channel id="` + id + `">`,
		`<title>News - Morning Programming</title>`,
		`<title>News - Evening Programming</title>`,
	} {
		if !strings.Contains(g, s) {
			t.Errorf("guide missing %q", s)
		}
	}
}

func TestRun_mergesGuide(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/c.json": twoChannels, "/guide.xml": alphaGuide})
	opts := testOptions(t, Source{URL: srv.URL + "/c.json", Format: normalize.FormatJSON})
	opts.EPGURL = srv.URL + "/guide.xml"

	sum, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if sum.EPGMatched != 1 || sum.EPGSynthetic != 1 || sum.Programmes != 5 {
		t.Errorf("summary = %+v", sum)
	}

	f, err := os.Open(opts.GuidePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	epg, err := guide.ParseXMLTV(f)
	if err != nil {
		t.Fatal(err)
	}
	alpha := epg.Programmes[assign.StableID("Alpha News", "https://cdn.example.com/alpha.m3u8")]
	if len(alpha) != 2 || alpha[0].Title != "Morning Show" || alpha[1].Title != "Midday" {
		t.Errorf("alpha programmes = %+v", alpha)
	}
	beta := epg.Programmes[assign.StableID("Beta", "https://cdn.example.com/beta.m3u8")]
	if len(beta) != 3 || beta[0].Title != "Beta - Morning Programming" {
		t.Errorf("beta programmes = %+v", beta)
	}
	if _, ok := epg.Programmes["alpha.us"]; ok {
		t.Error("guide programmes must be re-keyed to the channel ID")
	}
}

func TestRun_guideUnavailableDegrades(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/c.json": twoChannels, "/bad.xml": "<tv><programme"})
	for _, path := range []string{"/missing.xml", "/bad.xml"} {
		t.Run(path, func(t *testing.T) {
			opts := testOptions(t, Source{URL: srv.URL + "/c.json", Format: normalize.FormatJSON})
			opts.EPGURL = srv.URL + path
			sum, err := Run(context.Background(), opts)
			if err != nil {
				t.Fatal(err)
			}
			if !sum.EPGUnavailable || sum.EPGMatched != 0 || sum.EPGSynthetic != 2 || sum.Programmes != 6 {
				t.Errorf("summary = %+v", sum)
			}
		})
	}
}

func TestRun_m3uSource(t *testing.T) {
	playlist := "#EXTM3U\n" +
		"#EXTINF:-1 tvg-id=\"a.us\" group-title=\"News\",Alpha\nhttp://cdn.example.com/a.ts\n" +
		"#EXTINF:-1,Alpha Copy\nhttp://cdn.example.com/a.ts\n" +
		"http://cdn.example.com/bare.ts\n"
	srv, _ := serve(t, map[string]string{"/list.m3u": playlist, "/c.json": twoChannels})
	opts := testOptions(t,
		Source{URL: srv.URL + "/c.json", Format: normalize.FormatJSON},
		Source{URL: srv.URL + "/list.m3u", Format: normalize.FormatM3U},
	)
	sum, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Fetched != 4 || sum.Skipped != 1 || sum.Dropped["duplicate"] != 1 || sum.Written != 3 {
		t.Errorf("summary = %+v", sum)
	}
	out := readFile(t, opts.PlaylistPath)
	// Catalog order, then playlist order; ordinals are contiguous.
	for i, name := range []string{"Alpha News", "Beta", "Alpha"} {
		want := fmt.Sprintf("tvg-chno=\"%d\" tvg-name=%q", i+1, name)
		if !strings.Contains(out, want) {
			t.Errorf("playlist missing %s", want)
		}
	}
}

func TestRun_fetchFailureKeepsPreviousFiles(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	opts := testOptions(t, Source{URL: srv.URL + "/slow.json", Format: normalize.FormatJSON})
	opts.Fetcher.Timeout = 50 * time.Millisecond
	for _, p := range []string{opts.PlaylistPath, opts.GuidePath} {
		if err := os.WriteFile(p, []byte("previous"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	_, err := Run(context.Background(), opts)
	var fe *fetch.FetchError
	if !errors.As(err, &fe) || fe.Kind != fetch.KindTimeout {
		t.Fatalf("err = %v, want timeout FetchError", err)
	}
	if Category(err) != "fetch" {
		t.Errorf("Category = %q", Category(err))
	}
	if hits.Load() != 2 {
		t.Errorf("attempts = %d, want 2", hits.Load())
	}
	for _, p := range []string{opts.PlaylistPath, opts.GuidePath} {
		if got := readFile(t, p); got != "previous" {
			t.Errorf("%s changed: %q", filepath.Base(p), got)
		}
	}
}

func TestRun_parseFailureKeepsPreviousFiles(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/list.m3u": "not a playlist\nhttp://x.example.com/a.ts\n"})
	opts := testOptions(t, Source{URL: srv.URL + "/list.m3u", Format: normalize.FormatM3U})
	if err := os.WriteFile(opts.PlaylistPath, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Run(context.Background(), opts)
	if Category(err) != "parse" {
		t.Fatalf("err = %v, category %q", err, Category(err))
	}
	if got := readFile(t, opts.PlaylistPath); got != "previous" {
		t.Errorf("playlist changed: %q", got)
	}
	if _, err := os.Stat(opts.GuidePath); !os.IsNotExist(err) {
		t.Errorf("guide written on failure: %v", err)
	}
}

func TestRun_writeFailurePublishesNothing(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/us.json": threeEntries})
	opts := testOptions(t, Source{URL: srv.URL + "/us.json", Format: normalize.FormatJSON})
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	opts.GuidePath = filepath.Join(blocker, "epg_guide.xml")

	_, err := Run(context.Background(), opts)
	var we *output.WriteError
	if !errors.As(err, &we) || Category(err) != "write" {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(opts.PlaylistPath); !os.IsNotExist(err) {
		t.Errorf("playlist published although guide failed: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(opts.PlaylistPath))
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestRun_guideRenameFailureRestoresPlaylist(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/us.json": threeEntries})
	opts := testOptions(t, Source{URL: srv.URL + "/us.json", Format: normalize.FormatJSON})
	for _, previous := range []bool{true, false} {
		t.Run(fmt.Sprintf("previous=%v", previous), func(t *testing.T) {
			dir := t.TempDir()
			opts.PlaylistPath = filepath.Join(dir, "iptv_playlist.m3u")
			opts.GuidePath = filepath.Join(dir, "epg_guide.xml")
			if previous {
				if err := os.WriteFile(opts.PlaylistPath, []byte("previous"), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			// A non-empty directory at the guide path lets the temp file be
			// written but not renamed over it.
			if err := os.MkdirAll(filepath.Join(opts.GuidePath, "keep"), 0o755); err != nil {
				t.Fatal(err)
			}

			_, err := Run(context.Background(), opts)
			if Category(err) != "write" {
				t.Fatalf("err = %v", err)
			}
			if strings.Contains(err.Error(), "published") {
				t.Errorf("error claims a partial publish: %v", err)
			}
			data, statErr := os.ReadFile(opts.PlaylistPath)
			switch {
			case previous && string(data) != "previous":
				t.Errorf("playlist = %q, want previous content", data)
			case !previous && !os.IsNotExist(statErr):
				t.Errorf("new playlist left behind: %v", statErr)
			}
			entries, _ := os.ReadDir(dir)
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), ".") {
					t.Errorf("leftover file %s", e.Name())
				}
			}
		})
	}
}

func TestRun_deterministic(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/c.json": twoChannels, "/guide.xml": alphaGuide})
	var playlists, guides []string
	for range 2 {
		opts := testOptions(t, Source{URL: srv.URL + "/c.json", Format: normalize.FormatJSON})
		opts.EPGURL = srv.URL + "/guide.xml"
		if _, err := Run(context.Background(), opts); err != nil {
			t.Fatal(err)
		}
		playlists = append(playlists, readFile(t, opts.PlaylistPath))
		guides = append(guides, readFile(t, opts.GuidePath))
	}
	if playlists[0] != playlists[1] {
		t.Errorf("playlists differ:\n%s\n%s", playlists[0], playlists[1])
	}
	if guides[0] != guides[1] {
		t.Error("guides differ between identical runs")
	}
}

func TestRun_configErrorBeforeIO(t *testing.T) {
	srv, hits := serve(t, map[string]string{"/us.json": threeEntries})
	tests := []struct {
		name  string
		mod   func(*Options)
		field string
	}{
		{"bad timezone", func(o *Options) { o.Guide.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad horizon", func(o *Options) { o.Guide.HorizonDays = 90 }, "horizon_days"},
		{"no sources", func(o *Options) { o.Sources = nil }, "sources"},
		{"same outputs", func(o *Options) { o.GuidePath = o.PlaylistPath }, "outputs"},
		{"mapping without file", func(o *Options) { o.Guide.MatchKey = guide.MatchMapping }, "epg_match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t, Source{URL: srv.URL + "/us.json", Format: normalize.FormatJSON})
			tt.mod(&opts)
			_, err := Run(context.Background(), opts)
			var ce *config.ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Fatalf("err = %v, want ConfigError on %s", err, tt.field)
			}
			if Category(err) != "config" {
				t.Errorf("Category = %q", Category(err))
			}
			if _, err := os.Stat(opts.PlaylistPath); !os.IsNotExist(err) {
				t.Error("playlist written")
			}
		})
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times", hits.Load())
	}
}

func TestRun_recordsMetrics(t *testing.T) {
	srv, _ := serve(t, map[string]string{"/us.json": threeEntries})
	opts := testOptions(t, Source{URL: srv.URL + "/us.json", Format: normalize.FormatJSON})
	opts.Metrics = metrics.New()
	opts.MetricsPath = filepath.Join(t.TempDir(), "iptv_extract.prom")

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	text := readFile(t, opts.MetricsPath)
	for _, want := range []string{
		`iptv_extract_channels{stage="written"} 1`,
		`iptv_extract_channels_dropped{reason="denied"} 1`,
		`iptv_extract_run_total{result="ok"} 1`,
		`iptv_extract_run_last_ok 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics textfile missing %q", want)
		}
	}

	opts.Sources = nil
	if _, err := Run(context.Background(), opts); err == nil {
		t.Fatal("expected config error")
	}
	if n, err := testutil.GatherAndCount(opts.Metrics.Gatherer(), "iptv_extract_run_total"); err != nil || n != 2 {
		t.Errorf("run_total series = %d, %v", n, err)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&fetch.FetchError{Kind: fetch.KindHTTPStatus, Status: 404}, "fetch"},
		{fmt.Errorf("wrapped: %w", &normalize.ParseError{Reason: "x"}), "parse"},
		{&config.ConfigError{Field: "f", Reason: "r"}, "config"},
		{&output.WriteError{Path: "p", Err: errors.New("disk full")}, "write"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		if got := Category(tt.err); got != tt.want {
			t.Errorf("Category(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	mapping := filepath.Join(dir, "map.json")
	if err := os.WriteFile(mapping, []byte(`{"Beta": "beta.us"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		CatalogURLs:      []string{"https://example.com/us.json"},
		M3UURLs:          []string{"https://example.com/list.m3u"},
		EPGMatch:         "mapping",
		EPGMappingFile:   mapping,
		PlaylistPath:     filepath.Join(dir, "p.m3u"),
		GuidePath:        filepath.Join(dir, "g.xml"),
		FetchTimeout:     time.Second,
		FetchRetries:     2,
		FetchRate:        4,
		DenyTerms:        []string{"shopping"},
		DenyIDPrefixes:   []string{"shop."},
		ExcludeRadio:     false,
		ExcludeNonDirect: true,
		HorizonDays:      3,
		Timezone:         "America/New_York",
	}
	opts, err := FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Sources) != 2 || opts.Sources[0].Format != normalize.FormatJSON || opts.Sources[1].Format != normalize.FormatM3U {
		t.Errorf("sources = %+v", opts.Sources)
	}
	if opts.Fetcher.Limiter == nil || opts.Fetcher.Retries != 2 || opts.Fetcher.UserAgent != httpclient.UserAgent {
		t.Errorf("fetcher = %+v", opts.Fetcher)
	}
	if len(opts.Rules.DenyTerms) != 1 || len(opts.Rules.Exceptions) == 0 || opts.Rules.ExcludeRadio ||
		len(opts.Rules.DenyIDPrefixes) != 1 {
		t.Errorf("rules = %+v", opts.Rules)
	}
	if opts.Guide.Mapping["Beta"] != "beta.us" || opts.Guide.HorizonDays != 3 {
		t.Errorf("guide = %+v", opts.Guide)
	}

	cfg.Sources = []string{"m3u:https://example.com/feed", "https://example.com/any"}
	opts, err = FromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Sources) != 4 ||
		opts.Sources[2] != (Source{URL: "https://example.com/feed", Format: normalize.FormatM3U}) ||
		opts.Sources[3] != (Source{URL: "https://example.com/any", Format: normalize.FormatAuto}) {
		t.Errorf("typed sources = %+v", opts.Sources)
	}

	var ce *config.ConfigError
	cfg.Sources = []string{"xml:https://example.com/guide"}
	if _, err := FromConfig(cfg); !errors.As(err, &ce) || ce.Field != "sources" {
		t.Errorf("unknown format: err = %v", err)
	}
	cfg.Sources = nil

	cfg.EPGMappingFile = filepath.Join(dir, "missing.json")
	_, err = FromConfig(cfg)
	if !errors.As(err, &ce) || ce.Field != "epg_mapping_file" {
		t.Errorf("missing mapping: err = %v", err)
	}
}
