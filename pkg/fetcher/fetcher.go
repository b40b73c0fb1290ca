// Package fetcher runs a complete fetch: it binds a pagination strategy to
// an endpoint, collects every record and writes them to a CSV file.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/restcsv/pkg/client"
	"github.com/Sternrassler/restcsv/pkg/csvexport"
	"github.com/Sternrassler/restcsv/pkg/flatten"
	"github.com/Sternrassler/restcsv/pkg/pagination"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Run outcomes, used as the outcome label of restcsv_runs_total.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restcsv_runs_total",
		Help: "Total fetch runs by strategy and outcome",
	}, []string{"strategy", "outcome"})

	recordsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restcsv_records_written_total",
		Help: "Total CSV rows written",
	})
)

// ErrEmptyResult is returned when a run produced no records. No output file
// is written in that case.
var ErrEmptyResult = errors.New("no data fetched")

// Job describes one fetch run.
type Job struct {
	// Name identifies the job in logs and summaries.
	Name string

	Strategy pagination.Kind
	Client   client.Config
	Params   pagination.Params

	// Output is the CSV file path. It is overwritten on every successful run.
	Output string

	// Flatten collapses nested objects into compound columns before writing.
	Flatten bool
}

// Validate checks the fields Run needs before any request is made.
func (j Job) Validate() error {
	if j.Output == "" {
		return fmt.Errorf("output is required")
	}
	if _, err := pagination.ParseKind(string(j.Strategy)); err != nil {
		return err
	}
	if j.Client.URL == "" {
		return fmt.Errorf("url is required")
	}
	return j.Params.Validate()
}

// Result reports the outcome of a run.
type Result struct {
	RunID    string
	Name     string
	Strategy string
	Output   string

	// Records is the number of records fetched, Rows the number written.
	Records int
	Rows    int
	Columns []string
	Skipped int

	Duration time.Duration

	// Partial is set when pagination stopped on a failure after at least one
	// page. Cause holds that failure.
	Partial bool
	Cause   error
}

// Outcome returns the outcome label for r.
func (r Result) Outcome() string {
	if r.Partial {
		return OutcomePartial
	}
	return OutcomeSuccess
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger zerolog.Logger
	runID  string
}

// WithLogger sets the logger for the run. The default discards logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.New().String()
	}
	o.logger = o.logger.With().Str("run_id", o.runID).Logger()
	return o
}

// Run executes job: it builds the client and strategy, fetches all pages and
// writes the CSV file.
func Run(ctx context.Context, job Job, opts ...Option) (Result, error) {
	o := buildOptions(opts)
	logger := o.logger
	if job.Name != "" {
		logger = logger.With().Str("job", job.Name).Logger()
	}

	if err := job.Validate(); err != nil {
		runsTotal.WithLabelValues(string(job.Strategy), OutcomeError).Inc()
		logger.Error().Err(err).Msg("Invalid job")
		return Result{RunID: o.runID, Name: job.Name, Strategy: string(job.Strategy)}, fmt.Errorf("invalid job: %w", err)
	}

	cfg := job.Client
	if cfg.Logger == nil {
		cfg.Logger = &logger
	}
	c, err := client.New(cfg)
	if err != nil {
		runsTotal.WithLabelValues(string(job.Strategy), OutcomeError).Inc()
		logger.Error().Err(err).Msg("Failed to create client")
		return Result{RunID: o.runID, Name: job.Name, Strategy: string(job.Strategy)}, fmt.Errorf("create client: %w", err)
	}

	s, err := pagination.New(job.Strategy, c, job.Params, pagination.WithLogger(logger))
	if err != nil {
		runsTotal.WithLabelValues(string(job.Strategy), OutcomeError).Inc()
		return Result{RunID: o.runID, Name: job.Name, Strategy: string(job.Strategy)}, err
	}

	result, err := run(ctx, s, job.Output, job.Flatten, o.runID, logger)
	result.Name = job.Name
	return result, err
}

// RunStrategy fetches with an already built strategy and writes the records
// to output.
func RunStrategy(ctx context.Context, s pagination.Strategy, output string, flattenRecords bool, opts ...Option) (Result, error) {
	o := buildOptions(opts)
	return run(ctx, s, output, flattenRecords, o.runID, o.logger)
}

func run(ctx context.Context, s pagination.Strategy, output string, flattenRecords bool, runID string, logger zerolog.Logger) (Result, error) {
	start := time.Now()
	result := Result{RunID: runID, Strategy: s.Name(), Output: output}
	logger = logger.With().Str("output", output).Logger()

	logger.Info().Str("strategy", s.Name()).Msg("Starting fetch")

	records, fetchErr := s.FetchAll(ctx)
	result.Records = len(records)

	if len(records) == 0 {
		result.Duration = time.Since(start)
		runsTotal.WithLabelValues(s.Name(), OutcomeEmpty).Inc()
		logger.Error().Err(fetchErr).Msg("No data fetched, output not written")
		if fetchErr != nil {
			return result, fmt.Errorf("%w: %w", ErrEmptyResult, fetchErr)
		}
		return result, ErrEmptyResult
	}

	if fetchErr != nil {
		result.Partial = true
		result.Cause = fetchErr
		logger.Warn().
			Err(fetchErr).
			Int("records", len(records)).
			Msg("Fetch stopped early, writing partial result")
	}

	if flattenRecords {
		records = flatten.Records(records)
	}

	summary, err := csvexport.WriteFile(output, records)
	result.Columns = summary.Columns
	result.Rows = summary.Rows
	result.Skipped = summary.Skipped
	result.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, csvexport.ErrNoColumns) {
			runsTotal.WithLabelValues(s.Name(), OutcomeEmpty).Inc()
			logger.Error().Int("records", len(records)).Msg("Records have no columns, output not written")
			return result, fmt.Errorf("%w: %w", ErrEmptyResult, err)
		}
		runsTotal.WithLabelValues(s.Name(), OutcomeError).Inc()
		logger.Error().Err(err).Msg("Failed to write CSV")
		return result, fmt.Errorf("write csv: %w", err)
	}

	recordsWrittenTotal.Add(float64(summary.Rows))
	runsTotal.WithLabelValues(s.Name(), result.Outcome()).Inc()

	event := logger.Info()
	if summary.Skipped > 0 {
		event = logger.Warn().Int("skipped", summary.Skipped)
	}
	event.
		Int("rows", summary.Rows).
		Int("columns", len(summary.Columns)).
		Dur("duration", result.Duration).
		Msg("Data written to CSV")

	return result, nil
}
