// Command iptv-extract builds an M3U playlist and an XMLTV guide from public
// IPTV channel catalogs.
//
//	run    Fetch, filter and publish once, or every --refresh interval. For systemd or cron.
//	check  Probe the configured sources (and with --artifacts, the published files)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/snapetech/iptvextract/internal/config"
	"github.com/snapetech/iptvextract/internal/health"
	"github.com/snapetech/iptvextract/internal/httpclient"
	"github.com/snapetech/iptvextract/internal/metrics"
	"github.com/snapetech/iptvextract/internal/pipeline"
	"github.com/snapetech/iptvextract/internal/runlock"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <run|check> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  run    Fetch catalogs, write playlist and guide (--once, or --refresh 6h)\n")
	fmt.Fprintf(os.Stderr, "  check  Probe configured sources; --artifacts also checks the published files\n")
	fmt.Fprintf(os.Stderr, "Settings come from IPTV_EXTRACT_* environment variables or ./.env; flags override.\n")
}

func main() {
	_ = config.LoadEnvFile(".env")
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	runCmd := pflag.NewFlagSet("run", pflag.ExitOnError)
	runOnce := runCmd.Bool("once", false, "Run a single time and exit, ignoring IPTV_EXTRACT_REFRESH")
	runRefresh := runCmd.Duration("refresh", cfg.Refresh, "Run again on this interval (e.g. 6h). 0 = run once")
	runPlaylist := runCmd.String("playlist", "", "Playlist output path (default: IPTV_EXTRACT_PLAYLIST)")
	runGuide := runCmd.String("guide", "", "Guide output path (default: IPTV_EXTRACT_GUIDE)")
	runMetrics := runCmd.String("metrics-file", "", "Prometheus textfile path (default: IPTV_EXTRACT_METRICS_FILE)")

	checkCmd := pflag.NewFlagSet("check", pflag.ExitOnError)
	checkTimeout := checkCmd.Duration("timeout", 20*time.Second, "Timeout per source")
	checkArtifacts := checkCmd.Bool("artifacts", false, "Also check the published playlist and guide")

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if *runPlaylist != "" {
			cfg.PlaylistPath = *runPlaylist
		}
		if *runGuide != "" {
			cfg.GuidePath = *runGuide
		}
		if *runMetrics != "" {
			cfg.MetricsPath = *runMetrics
		}
		cfg.Refresh = *runRefresh
		if *runOnce {
			cfg.Refresh = 0
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := runPipeline(ctx, cfg)
		stop()
		os.Exit(code)

	case "check":
		_ = checkCmd.Parse(os.Args[2:])
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		code := runCheck(ctx, cfg, *checkTimeout, *checkArtifacts)
		stop()
		os.Exit(code)

	case "help", "-h", "--help":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(exitUsage)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level; using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// runPipeline runs once, or until ctx is cancelled when cfg.Refresh > 0.
// In refresh mode a failed run is logged and the next tick tries again.
func runPipeline(ctx context.Context, cfg *config.Config) int {
	opts, err := pipeline.FromConfig(cfg)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return exitUsage
	}
	if opts.MetricsPath != "" {
		opts.Metrics = metrics.New()
	}

	runOnce := func() error {
		lock, err := runlock.TryLock(cfg.LockPath)
		if err != nil {
			if errors.Is(err, runlock.ErrLocked) {
				log.WithField("lock", cfg.LockPath).Warn("previous run still in progress; skipping")
			} else {
				log.WithError(err).Error("cannot take run lock")
			}
			return err
		}
		defer lock.Release()
		log.WithField("lock", lock.Path()).Debug("run lock held")
		_, err = pipeline.Run(ctx, opts)
		return err
	}

	err = runOnce()
	if cfg.Refresh <= 0 {
		if err != nil {
			return exitFailed
		}
		return exitOK
	}

	log.WithField("interval", cfg.Refresh).Info("refresh enabled")
	ticker := time.NewTicker(cfg.Refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return exitOK
		case <-ticker.C:
			_ = runOnce()
		}
	}
}

// runCheck probes every configured source. A failing guide source only warns
// because runs fall back to a synthetic schedule without it.
func runCheck(ctx context.Context, cfg *config.Config, timeout time.Duration, artifacts bool) int {
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		return exitUsage
	}
	client := httpclient.WithTimeout(timeout)
	primary := append(append([]string(nil), cfg.CatalogURLs...), cfg.M3UURLs...)
	for _, entry := range cfg.Sources {
		_, u := config.SplitSource(entry)
		primary = append(primary, u)
	}

	failed := 0
	for _, r := range health.CheckSources(ctx, client, primary) {
		entry := log.WithFields(log.Fields{"source": r.URL, "status": r.Status, "latency": r.Latency.Round(time.Millisecond)})
		if r.Err != nil {
			entry.WithError(r.Err).Error("source check failed")
			failed++
			continue
		}
		entry.Info("source OK")
	}
	if cfg.EPGURL != "" {
		for _, r := range health.CheckSources(ctx, client, []string{cfg.EPGURL}) {
			entry := log.WithFields(log.Fields{"source": r.URL, "status": r.Status, "latency": r.Latency.Round(time.Millisecond)})
			if r.Err != nil {
				entry.WithError(r.Err).Warn("guide source check failed; runs will use a synthetic schedule")
				continue
			}
			entry.Info("guide source OK")
		}
	}
	if artifacts {
		if err := health.CheckArtifacts(cfg.PlaylistPath, cfg.GuidePath); err != nil {
			log.WithError(err).Error("published files check failed")
			failed++
		} else {
			log.WithFields(log.Fields{"playlist": cfg.PlaylistPath, "guide": cfg.GuidePath}).Info("published files OK")
		}
	}
	if failed > 0 {
		return exitFailed
	}
	return exitOK
}
