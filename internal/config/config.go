package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/iptvextract/internal/safeurl"
)

// DefaultCatalogURL is the TV Garden US channel list.
const DefaultCatalogURL = "https://raw.githubusercontent.com/TVGarden/tv-garden-channel-list/refs/heads/main/channels/raw/countries/us.json"

// Config holds source, filter, guide and output settings for one pipeline.
// Load from env; flags in cmd/iptv-extract override individual fields.
type Config struct {
	// Sources
	CatalogURLs         []string // JSON channel catalogs
	M3UURLs             []string // M3U playlists
	Sources             []string // "[format:]url" entries; format auto|json|m3u, default auto
	EPGURL              string   // optional XMLTV source to merge
	EPGInsecureFallback bool     // retry the EPG once without TLS verification
	EPGMatch            string   // auto | name | tvg-id | mapping
	EPGMappingFile      string   // JSON {"Channel Name": "xmltv.id"}

	// Outputs
	PlaylistPath string
	GuidePath    string
	MetricsPath  string // node_exporter textfile; "" = disabled
	LockPath     string

	// Fetch
	FetchTimeout time.Duration
	FetchRetries int
	FetchBackoff time.Duration
	FetchRate    float64 // requests per second across all sources; 0 = unlimited

	// Filter
	DenyTerms        []string // nil = built-in lexicon
	DenyExceptions   []string // nil = built-in exceptions
	DenyIDPrefixes   []string // nil = built-in playlist tvg-id prefixes
	ExcludeRadio     bool
	ExcludeNonDirect bool
	NonDirectHosts   []string // nil = built-in list

	// Guide
	HorizonDays int
	Timezone    string

	Refresh  time.Duration // 0 = run once
	LogLevel string
}

// ConfigError reports an invalid setting. It is returned before any network
// or filesystem work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	c := &Config{
		CatalogURLs:         getEnvList("IPTV_EXTRACT_CATALOG_URLS", []string{DefaultCatalogURL}),
		M3UURLs:             getEnvList("IPTV_EXTRACT_M3U_URLS", nil),
		Sources:             getEnvList("IPTV_EXTRACT_SOURCES", nil),
		EPGURL:              os.Getenv("IPTV_EXTRACT_EPG_URL"),
		EPGInsecureFallback: getEnvBool("IPTV_EXTRACT_EPG_INSECURE_FALLBACK", false),
		EPGMatch:            strings.ToLower(getEnv("IPTV_EXTRACT_EPG_MATCH", "auto")),
		EPGMappingFile:      os.Getenv("IPTV_EXTRACT_EPG_MAPPING_FILE"),
		PlaylistPath:        getEnv("IPTV_EXTRACT_PLAYLIST", "./iptv_playlist.m3u"),
		GuidePath:           getEnv("IPTV_EXTRACT_GUIDE", "./epg_guide.xml"),
		MetricsPath:         os.Getenv("IPTV_EXTRACT_METRICS_FILE"),
		LockPath:            getEnv("IPTV_EXTRACT_LOCK_FILE", "./iptv-extract.lock"),
		FetchTimeout:        getEnvDuration("IPTV_EXTRACT_FETCH_TIMEOUT", 60*time.Second),
		FetchRetries:        getEnvInt("IPTV_EXTRACT_FETCH_RETRIES", 2),
		FetchBackoff:        getEnvDuration("IPTV_EXTRACT_FETCH_BACKOFF", 2*time.Second),
		FetchRate:           getEnvFloat("IPTV_EXTRACT_FETCH_RATE", 0),
		DenyTerms:           getEnvList("IPTV_EXTRACT_DENY_TERMS", nil),
		DenyExceptions:      getEnvList("IPTV_EXTRACT_DENY_EXCEPTIONS", nil),
		DenyIDPrefixes:      getEnvList("IPTV_EXTRACT_DENY_ID_PREFIXES", nil),
		ExcludeRadio:        getEnvBool("IPTV_EXTRACT_EXCLUDE_RADIO", true),
		ExcludeNonDirect:    getEnvBool("IPTV_EXTRACT_EXCLUDE_NON_DIRECT", true),
		NonDirectHosts:      getEnvList("IPTV_EXTRACT_NON_DIRECT_HOSTS", nil),
		HorizonDays:         getEnvInt("IPTV_EXTRACT_HORIZON_DAYS", 7),
		Timezone:            getEnv("IPTV_EXTRACT_TIMEZONE", "UTC"),
		Refresh:             getEnvDuration("IPTV_EXTRACT_REFRESH", 0),
		LogLevel:            getEnv("IPTV_EXTRACT_LOG_LEVEL", "info"),
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 60 * time.Second
	}
	return c
}

// Validate checks every setting that can be checked without I/O.
func (c *Config) Validate() error {
	if len(c.CatalogURLs) == 0 && len(c.M3UURLs) == 0 && len(c.Sources) == 0 {
		return &ConfigError{Field: "sources", Reason: "no catalog or M3U URL configured"}
	}
	urls := append(append([]string(nil), c.CatalogURLs...), c.M3UURLs...)
	for _, s := range c.Sources {
		_, u := SplitSource(s)
		urls = append(urls, u)
	}
	for _, u := range urls {
		if !isHTTPURL(u) {
			return &ConfigError{Field: "sources", Reason: fmt.Sprintf("not an http(s) URL: %q", u)}
		}
	}
	if c.EPGURL != "" && !isHTTPURL(c.EPGURL) {
		return &ConfigError{Field: "epg_url", Reason: fmt.Sprintf("not an http(s) URL: %q", c.EPGURL)}
	}
	switch c.EPGMatch {
	case "auto", "name", "tvg-id":
	case "mapping":
		if c.EPGMappingFile == "" {
			return &ConfigError{Field: "epg_match", Reason: "mapping requires IPTV_EXTRACT_EPG_MAPPING_FILE"}
		}
	default:
		return &ConfigError{Field: "epg_match", Reason: fmt.Sprintf("unknown match key %q", c.EPGMatch)}
	}
	if strings.TrimSpace(c.PlaylistPath) == "" || strings.TrimSpace(c.GuidePath) == "" {
		return &ConfigError{Field: "outputs", Reason: "playlist and guide paths are required"}
	}
	if c.PlaylistPath == c.GuidePath {
		return &ConfigError{Field: "outputs", Reason: "playlist and guide must be different files"}
	}
	if c.FetchRetries < 0 || c.FetchRetries > 10 {
		return &ConfigError{Field: "fetch_retries", Reason: fmt.Sprintf("%d out of range 0..10", c.FetchRetries)}
	}
	if c.FetchRate < 0 {
		return &ConfigError{Field: "fetch_rate", Reason: "must not be negative"}
	}
	if c.HorizonDays < 1 || c.HorizonDays > MaxHorizonDays {
		return &ConfigError{Field: "horizon_days", Reason: fmt.Sprintf("%d out of range 1..%d", c.HorizonDays, MaxHorizonDays)}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ConfigError{Field: "timezone", Reason: err.Error()}
	}
	if c.Refresh < 0 {
		return &ConfigError{Field: "refresh", Reason: "must not be negative"}
	}
	return nil
}

// SplitSource splits a "[format:]url" source entry. An entry with no format
// prefix returns format "".
func SplitSource(entry string) (format, url string) {
	entry = strings.TrimSpace(entry)
	if prefix, rest, ok := strings.Cut(entry, ":"); ok && !strings.HasPrefix(rest, "//") {
		return strings.ToLower(strings.TrimSpace(prefix)), strings.TrimSpace(rest)
	}
	return "", entry
}

// MaxHorizonDays caps the guide horizon; XMLTV consumers rarely look further.
const MaxHorizonDays = 31

func isHTTPURL(s string) bool {
	return safeurl.IsHTTPOrHTTPS(s) && safeurl.Host(s) != ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated value, dropping blanks. An unset or
// all-blank variable yields defaultVal.
func getEnvList(key string, defaultVal []string) []string {
	return SplitList(os.Getenv(key), defaultVal)
}

// SplitList splits s on commas and trims each part. Returns defaultVal when
// nothing is left.
func SplitList(s string, defaultVal []string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
