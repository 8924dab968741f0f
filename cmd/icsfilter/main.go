package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"

	"icsfilter/internal/config"
	"icsfilter/internal/filter"
	"icsfilter/internal/ics"
	appLog "icsfilter/internal/log"
	"icsfilter/internal/pipeline"
	"icsfilter/internal/web"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath  string
	url         string
	input       string
	output      string
	after       string
	timezone    string
	keywords    string
	listen      string
	logLevel    string
	strictRRule bool
	once        bool
}

func main() {
	flags := parseFlags()

	cfg, err := loadConfig(flags)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	rt, err := cfg.Resolve()
	if err != nil {
		appLog.Error("invalid configuration", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"timezone", rt.Location.String(),
		"after", cfg.After,
		"keywords", strings.Join(rt.Keywords, ","),
		"output", cfg.Output,
		"refresh", cfg.Refresh,
		"listen", cfg.Listen,
		"once", flags.once,
	)

	opts := pipeline.Options{
		Criteria: filter.Criteria{
			Keywords: rt.Keywords,
			Cutoff:   rt.Cutoff,
			Location: rt.Location,
		},
		StrictRRule: cfg.StrictRRule,
	}
	src := newSource(cfg)

	if !cfg.Scheduled(flags.once) {
		if cfg.ListenIgnored(flags.once) {
			appLog.Warn("listen address ignored in one-shot mode; set refresh to serve the calendar", "listen", cfg.Listen)
		}
		if _, err := pipeline.Execute(context.Background(), src, cfg.Output, opts); err != nil {
			appLog.Error("filter run failed", err)
			os.Exit(1)
		}
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runScheduled(ctx, cfg, rt, src, opts); err != nil {
		appLog.Error("scheduler failed", err)
		os.Exit(1)
	}
	appLog.Info("icsfilter exiting")
}

// runScheduled runs the pipeline immediately and then on cfg.Refresh until
// ctx is canceled. A failed run keeps the previous output in place.
func runScheduled(ctx context.Context, cfg *config.Config, rt config.Runtime, src pipeline.Source, opts pipeline.Options) error {
	var srv *web.Server
	if cfg.Listen != "" {
		srv = web.NewServer(cfg)
	}

	job := func() {
		res, err := pipeline.Execute(ctx, src, cfg.Output, opts)
		if err != nil {
			appLog.Error("scheduled filter run failed", err)
			return
		}
		if srv != nil {
			srv.Publish(res.Output)
		}
	}

	c := cron.New(
		cron.WithLocation(rt.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(cfg.Refresh, job); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Refresh, err)
	}

	job()
	c.Start()
	appLog.Info("scheduler started", "refresh", cfg.Refresh)

	var srvErr error
	if srv != nil {
		srvErr = srv.ListenAndServe(ctx)
	} else {
		<-ctx.Done()
	}

	<-c.Stop().Done()
	return srvErr
}

func newSource(cfg *config.Config) pipeline.Source {
	if cfg.Input != "" {
		return pipeline.FileSource{Path: cfg.Input}
	}
	return pipeline.URLSource{
		Fetcher: ics.NewFetcher(cfg.CacheDir),
		URL:     cfg.SourceURL,
	}
}

func loadConfig(flags flagConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.url != "" {
		cfg.SourceURL = flags.url
	}
	if flags.input != "" {
		cfg.Input = flags.input
	}
	if flags.output != "" {
		cfg.Output = flags.output
	}
	if flags.after != "" {
		cfg.After = flags.after
	}
	if flags.timezone != "" {
		cfg.Timezone = flags.timezone
	}
	if flags.keywords != "" {
		cfg.Keywords = strings.Split(flags.keywords, ",")
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.strictRRule {
		cfg.StrictRRule = true
	}
	cfg.Normalize()
	return cfg, nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	flag.StringVar(&cfg.url, "url", "", "ICS feed URL to download")
	flag.StringVar(&cfg.input, "input", "", "Local ICS file to read instead of downloading")
	flag.StringVar(&cfg.output, "output", "", "Output ICS path")
	flag.StringVar(&cfg.after, "after", "", "Drop events beginning before this date (MM/DD/YYYY)")
	flag.StringVar(&cfg.timezone, "timezone", "", "IANA time zone events are dated in")
	flag.StringVar(&cfg.keywords, "keywords", "", "Comma-separated name keywords")
	flag.StringVar(&cfg.listen, "listen", "", "Serve the filtered calendar on this address (needs a refresh schedule)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error")
	flag.BoolVar(&cfg.strictRRule, "strict-rrule", false, "Reject documents with RRULEs that cannot be parsed")
	flag.BoolVar(&cfg.once, "once", false, "Run one filter pass and exit even if refresh is configured")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [OUTPUT [MM/DD/YYYY]]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Positional form: OUTPUT [AFTER].
	args := flag.Args()
	if len(args) > 2 {
		flag.Usage()
		os.Exit(2)
	}
	if len(args) >= 1 && cfg.output == "" {
		cfg.output = args[0]
	}
	if len(args) == 2 && cfg.after == "" {
		cfg.after = args[1]
	}

	return cfg
}
