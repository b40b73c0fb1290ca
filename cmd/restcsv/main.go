// Command restcsv fetches every page of a REST collection and writes the
// records to a CSV file.
//
// Single job from flags:
//
//	restcsv -url https://pokeapi.co/api/v2/pokemon -strategy offset \
//	    -param limit=20 -param data_key=results -out pokemon.csv
//
// Every job in a YAML file, one after another:
//
//	restcsv -config jobs.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/restcsv/pkg/cache"
	"github.com/Sternrassler/restcsv/pkg/client"
	"github.com/Sternrassler/restcsv/pkg/config"
	"github.com/Sternrassler/restcsv/pkg/fetcher"
	"github.com/Sternrassler/restcsv/pkg/logging"
	"github.com/Sternrassler/restcsv/pkg/metrics"
	"github.com/Sternrassler/restcsv/pkg/pagination"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds the parsed command line.
type options struct {
	configPath  string
	url         string
	strategy    string
	output      string
	token       string
	headers     kvFlag
	params      kvFlag
	retries     int
	backoff     time.Duration
	timeout     time.Duration
	flatten     bool
	redisAddr   string
	cacheTTL    time.Duration
	refresh     bool
	metricsFile string
	logLevel    string
	pretty      bool

	// set records the flags given explicitly on the command line.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("restcsv", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaults := client.DefaultConfig("")
	fs.StringVar(&opts.configPath, "config", "", "YAML job file; runs every job in it")
	fs.StringVar(&opts.url, "url", "", "endpoint URL")
	fs.StringVar(&opts.strategy, "strategy", string(pagination.KindSimple), "pagination strategy: "+kindList())
	fs.StringVar(&opts.output, "out", "", "output CSV file")
	fs.StringVar(&opts.token, "token", getEnv("RESTCSV_TOKEN", ""), "bearer token (env RESTCSV_TOKEN)")
	fs.Var(&opts.headers, "header", "request header name=value (repeatable)")
	fs.Var(&opts.params, "param", "pagination parameter name=value, e.g. per_page=50 (repeatable)")
	fs.IntVar(&opts.retries, "retries", defaults.MaxRetries, "attempts per request")
	fs.DurationVar(&opts.backoff, "backoff", defaults.BackoffBase, "delay after the first failed attempt, doubled per retry")
	fs.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "timeout per request attempt")
	fs.BoolVar(&opts.flatten, "flatten", false, "flatten nested objects into compound columns")
	fs.StringVar(&opts.redisAddr, "redis", getEnv("REDIS_URL", ""), "Redis address for the response cache (env REDIS_URL)")
	fs.DurationVar(&opts.cacheTTL, "cache-ttl", cache.DefaultTTL, "cache TTL for responses without an Expires header")
	fs.BoolVar(&opts.refresh, "refresh", false, "purge cached responses for each job before fetching")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	fs.StringVar(&opts.logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level: debug, info, warn, error (env LOG_LEVEL)")
	fs.BoolVar(&opts.pretty, "pretty", false, "human readable logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	if opts.configPath != "" {
		for _, name := range []string{"url", "strategy", "out"} {
			if opts.set[name] {
				return nil, fmt.Errorf("-%s cannot be combined with -config", name)
			}
		}
	} else {
		if opts.url == "" {
			return nil, fmt.Errorf("-url or -config is required")
		}
		if opts.output == "" {
			return nil, fmt.Errorf("-out is required")
		}
	}
	if _, err := logging.ParseLevel(opts.logLevel); err != nil {
		return nil, err
	}
	return opts, nil
}

// plan is the resolved set of jobs plus the run wide settings.
type plan struct {
	jobs        []fetcher.Job
	log         logging.Config
	cache       config.CacheConfig
	metricsFile string
}

func buildPlan(opts *options) (*plan, error) {
	p := &plan{
		log: logging.Config{
			Level:  logging.LogLevel(opts.logLevel),
			Pretty: opts.pretty,
		},
		cache: config.CacheConfig{
			RedisAddr: opts.redisAddr,
			TTL:       config.Duration(opts.cacheTTL),
			Refresh:   opts.refresh,
		},
		metricsFile: opts.metricsFile,
	}

	if opts.configPath != "" {
		f, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		for _, entry := range f.Jobs {
			job, err := entry.Job()
			if err != nil {
				return nil, fmt.Errorf("job %s: %w", entry.Name, err)
			}
			if err := applyJobFlags(&job, opts); err != nil {
				return nil, fmt.Errorf("job %s: %w", entry.Name, err)
			}
			if err := job.Validate(); err != nil {
				return nil, fmt.Errorf("job %s: %w", entry.Name, err)
			}
			p.jobs = append(p.jobs, job)
		}

		// Explicit flags win over the file.
		if f.Log.Level != "" && !opts.set["log-level"] {
			p.log.Level = f.Log.Level
		}
		if !opts.set["pretty"] {
			p.log.Pretty = f.Log.Pretty
		}
		if f.Cache.Enabled() && !opts.set["redis"] {
			p.cache.RedisAddr = f.Cache.RedisAddr
		}
		p.cache.RedisDB = f.Cache.RedisDB
		if f.Cache.TTL != 0 && !opts.set["cache-ttl"] {
			p.cache.TTL = f.Cache.TTL
		}
		if f.Cache.Refresh && !opts.set["refresh"] {
			p.cache.Refresh = true
		}
		if f.MetricsFile != "" && !opts.set["metrics-file"] {
			p.metricsFile = f.MetricsFile
		}
		return p, nil
	}

	kind, err := pagination.ParseKind(opts.strategy)
	if err != nil {
		return nil, err
	}

	var params pagination.Params
	for _, kv := range opts.params {
		if err := params.Set(kv.key, kv.value); err != nil {
			return nil, err
		}
	}

	cfg := client.DefaultConfig(opts.url)
	cfg.Headers = opts.headers.Map()
	cfg.AccessToken = opts.token
	cfg.MaxRetries = opts.retries
	cfg.BackoffBase = opts.backoff
	cfg.Timeout = opts.timeout

	job := fetcher.Job{
		Name:     "cli",
		Strategy: kind,
		Client:   cfg,
		Params:   params,
		Output:   opts.output,
		Flatten:  opts.flatten,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	p.jobs = []fetcher.Job{job}
	return p, nil
}

// applyJobFlags overrides the fields of a job loaded from a file with the
// request flags given on the command line. A token from RESTCSV_TOKEN only
// fills jobs that have none.
func applyJobFlags(job *fetcher.Job, opts *options) error {
	switch {
	case opts.set["token"]:
		job.Client.AccessToken = opts.token
	case job.Client.AccessToken == "":
		job.Client.AccessToken = opts.token
	}

	if opts.set["retries"] {
		job.Client.MaxRetries = opts.retries
	}
	if opts.set["backoff"] {
		job.Client.BackoffBase = opts.backoff
	}
	if opts.set["timeout"] {
		job.Client.Timeout = opts.timeout
	}
	if opts.set["flatten"] {
		job.Flatten = opts.flatten
	}

	if len(opts.headers) > 0 {
		headers := make(map[string]string, len(job.Client.Headers)+len(opts.headers))
		for k, v := range job.Client.Headers {
			headers[k] = v
		}
		for k, v := range opts.headers.Map() {
			headers[k] = v
		}
		job.Client.Headers = headers
	}

	for _, kv := range opts.params {
		if err := job.Params.Set(kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "restcsv: %v\n", err)
		return exitUsage
	}

	p, err := buildPlan(opts)
	if err != nil {
		fmt.Fprintf(stderr, "restcsv: %v\n", err)
		return exitUsage
	}

	p.log.Output = stderr
	logging.Setup(p.log)
	logger := logging.NewLogger("cli")

	responseCache, closeCache := connectCache(ctx, p.cache, logger)
	defer closeCache()

	fetchLogger := logging.NewLogger("fetcher")
	var results []fetcher.Result
	var errs []error
	for _, job := range p.jobs {
		job.Client.Cache = responseCache
		if responseCache != nil && p.cache.Refresh {
			purged, err := responseCache.Purge(ctx, job.Client.URL)
			if err != nil {
				logger.Warn().Err(err).Str("job", job.Name).Msg("Failed to purge cache")
			} else {
				logger.Info().Str("job", job.Name).Int("keys", purged).Msg("Purged cached responses")
			}
		}
		result, err := fetcher.Run(ctx, job, fetcher.WithLogger(fetchLogger))
		results = append(results, result)
		errs = append(errs, err)

		if ctx.Err() != nil {
			logger.Warn().Msg("Interrupted, skipping remaining jobs")
			break
		}
	}

	printSummary(stdout, results, errs)

	if p.metricsFile != "" {
		if err := metrics.WriteTextfile(p.metricsFile); err != nil {
			logger.Error().Err(err).Msg("Failed to write metrics")
		} else {
			logger.Debug().Str("path", p.metricsFile).Msg("Metrics written")
		}
	}

	for _, err := range errs {
		if err != nil {
			return exitFail
		}
	}
	return exitOK
}

// connectCache returns the response cache, or nil when no Redis address is
// configured or Redis is unreachable.
func connectCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (*cache.Manager, func()) {
	if !cfg.Enabled() {
		return nil, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, running without cache")
		redisClient.Close()
		return nil, func() {}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	return cache.NewManager(redisClient, time.Duration(cfg.TTL)), func() { redisClient.Close() }
}

func printSummary(w io.Writer, results []fetcher.Result, errs []error) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Job", "Strategy", "Outcome", "Records", "Rows", "Columns", "Skipped", "Duration", "Output"})

	for i, r := range results {
		outcome := r.Outcome()
		if err := errs[i]; err != nil {
			outcome = fetcher.OutcomeError
			if errors.Is(err, fetcher.ErrEmptyResult) {
				outcome = fetcher.OutcomeEmpty
			}
		}
		t.AppendRow(table.Row{
			r.Name,
			r.Strategy,
			outcome,
			r.Records,
			r.Rows,
			len(r.Columns),
			r.Skipped,
			r.Duration.Round(time.Millisecond).String(),
			r.Output,
		})
	}
	t.Render()

	for i, err := range errs {
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", results[i].Name, err)
		}
	}
}

// kvFlag collects repeated name=value flags.
type kvFlag []kv

type kv struct {
	key   string
	value string
}

// String implements flag.Value.
func (f *kvFlag) String() string {
	parts := make([]string, len(*f))
	for i, p := range *f {
		parts[i] = p.key + "=" + p.value
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.
func (f *kvFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	*f = append(*f, kv{key: key, value: value})
	return nil
}

// Map returns the pairs as a map. Later pairs override earlier ones.
func (f kvFlag) Map() map[string]string {
	if len(f) == 0 {
		return nil
	}
	m := make(map[string]string, len(f))
	for _, p := range f {
		m[p.key] = p.value
	}
	return m
}

func kindList() string {
	names := make([]string, len(pagination.Kinds))
	for i, k := range pagination.Kinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
