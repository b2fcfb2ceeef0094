package pipeline

import (
	"golang.org/x/time/rate"

	"github.com/snapetech/iptvextract/internal/config"
	"github.com/snapetech/iptvextract/internal/fetch"
	"github.com/snapetech/iptvextract/internal/filter"
	"github.com/snapetech/iptvextract/internal/guide"
	"github.com/snapetech/iptvextract/internal/httpclient"
	"github.com/snapetech/iptvextract/internal/normalize"
)

// FromConfig validates cfg and turns it into run Options. The mapping file,
// when configured, is read here so a bad file fails before any fetch.
func FromConfig(cfg *config.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}
	opts := Options{
		EPGURL:       cfg.EPGURL,
		PlaylistPath: cfg.PlaylistPath,
		GuidePath:    cfg.GuidePath,
		MetricsPath:  cfg.MetricsPath,
	}
	for _, u := range cfg.CatalogURLs {
		opts.Sources = append(opts.Sources, Source{URL: u, Format: normalize.FormatJSON})
	}
	for _, u := range cfg.M3UURLs {
		opts.Sources = append(opts.Sources, Source{URL: u, Format: normalize.FormatM3U})
	}
	for _, entry := range cfg.Sources {
		name, u := config.SplitSource(entry)
		format, err := normalize.ParseFormat(name)
		if err != nil {
			return Options{}, &config.ConfigError{Field: "sources", Reason: err.Error()}
		}
		opts.Sources = append(opts.Sources, Source{URL: u, Format: format})
	}

	opts.Fetcher = &fetch.Fetcher{
		Client:              httpclient.WithTimeout(cfg.FetchTimeout),
		Timeout:             cfg.FetchTimeout,
		Retries:             cfg.FetchRetries,
		Backoff:             cfg.FetchBackoff,
		UserAgent:           httpclient.UserAgent,
		InsecureEPGFallback: cfg.EPGInsecureFallback,
	}
	if cfg.FetchRate > 0 {
		opts.Fetcher.Limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), 1)
	}

	opts.Rules = filter.DefaultRules()
	if cfg.DenyTerms != nil {
		opts.Rules.DenyTerms = cfg.DenyTerms
	}
	if cfg.DenyExceptions != nil {
		opts.Rules.Exceptions = cfg.DenyExceptions
	}
	if cfg.DenyIDPrefixes != nil {
		opts.Rules.DenyIDPrefixes = cfg.DenyIDPrefixes
	}
	if cfg.NonDirectHosts != nil {
		opts.Rules.NonDirectHosts = cfg.NonDirectHosts
	}
	opts.Rules.ExcludeRadio = cfg.ExcludeRadio
	opts.Rules.ExcludeNonDirect = cfg.ExcludeNonDirect

	opts.Guide = guide.Options{
		HorizonDays: cfg.HorizonDays,
		Timezone:    cfg.Timezone,
		MatchKey:    guide.MatchKey(cfg.EPGMatch),
	}
	if cfg.EPGMappingFile != "" {
		m, err := guide.LoadMappingFile(cfg.EPGMappingFile)
		if err != nil {
			return Options{}, &config.ConfigError{Field: "epg_mapping_file", Reason: err.Error()}
		}
		opts.Guide.Mapping = m
	}
	return opts, opts.Validate()
}
