// Command geoindex is a thin wrapper around the supervised ingestion
// pipeline: it wires CLI flags into a config.Config, starts the root
// supervisor, and runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quay/zlog"
	"github.com/rs/zerolog"

	"github.com/quay/claircore-geoindex/internal/config"
	"github.com/quay/claircore-geoindex/internal/manager"
	"github.com/quay/claircore-geoindex/internal/metrics"
	"github.com/quay/claircore-geoindex/internal/stage"
	"github.com/quay/claircore-geoindex/internal/supervisor"
)

func main() {
	cfg := config.Defaults()
	cfg.TargetDir = filepath.Join(os.TempDir(), "geoindex")

	var countries string
	var logLevel string
	flag.StringVar(&cfg.TargetDir, "target-dir", cfg.TargetDir, "staging/output directory root")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "GeoNames dump base URL")
	flag.StringVar(&cfg.ProxyHost, "proxy-host", cfg.ProxyHost, "optional HTTP proxy host")
	flag.StringVar(&cfg.ProxyPort, "proxy-port", cfg.ProxyPort, "optional HTTP proxy port")
	flag.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "max age before a country's data is refetched")
	flag.DurationVar(&cfg.RetryWait, "retry-wait", cfg.RetryWait, "wait between fetch retry rounds")
	flag.IntVar(&cfg.RetryLimit, "retry-limit", cfg.RetryLimit, "max fetch attempts, including the first, before failing")
	flag.Float64Var(&cfg.ProgressFraction, "progress-fraction", cfg.ProgressFraction, "fraction of a country file between progress pulses")
	flag.Int64Var(&cfg.MinPopulation, "min-population", cfg.MinPopulation, "minimum population to keep a populated-place record")
	flag.Int64Var(&cfg.MaxParallelCountries, "max-parallel-countries", cfg.MaxParallelCountries, "max countries ingested concurrently")
	flag.BoolVar(&cfg.Trace, "trace", cfg.Trace, "enable verbose tracing")
	flag.StringVar(&countries, "countries", "", "comma-separated ISO country codes to restrict ingestion to (default: all)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if countries != "" {
		cfg.Countries = strings.Split(countries, ",")
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Logger().
		Level(parseLevel(logLevel))
	zlog.Set(&log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := newHTTPClient(cfg)
	sink := metrics.NewSink()

	sup := supervisor.New(func() *manager.Manager {
		return manager.New(cfg, httpClient, stage.New(cfg.TargetDir), sink)
	})

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("supervisor exited with error")
	}
}

func newHTTPClient(cfg config.Config) *http.Client {
	if !cfg.UseProxy() {
		return &http.Client{Timeout: 60 * time.Second}
	}
	proxyURL := &url.URL{Scheme: "http", Host: cfg.ProxyHost + ":" + cfg.ProxyPort}
	return &http.Client{
		Timeout:   60 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
}

func parseLevel(s string) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}
