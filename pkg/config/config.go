// Package config loads restcsv job files.
//
// A job file is YAML. ${VAR} references are expanded from the environment
// before parsing, so tokens can stay out of the file:
//
//	log:
//	  level: info
//	cache:
//	  redis_addr: localhost:6379
//	  ttl: 10m
//	  refresh: false
//	metrics_file: /var/lib/node_exporter/restcsv.prom
//	jobs:
//	  - name: people
//	    strategy: paginated
//	    url: https://swapi.dev/api/people/
//	    output: people.csv
//	    flatten: true
//	    params:
//	      data_key: results
//	      per_page: 10
//	  - name: events
//	    strategy: cursor
//	    url: https://api.example.com/events
//	    access_token: ${EVENTS_TOKEN}
//	    retries: 5
//	    backoff: 500ms
//	    output: events.csv
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/restcsv/pkg/client"
	"github.com/Sternrassler/restcsv/pkg/fetcher"
	"github.com/Sternrassler/restcsv/pkg/logging"
	"github.com/Sternrassler/restcsv/pkg/pagination"
	"gopkg.in/yaml.v3"
)

// File is a parsed job file.
type File struct {
	Log         logging.Config `yaml:"log"`
	Cache       CacheConfig    `yaml:"cache,omitempty"`
	MetricsFile string         `yaml:"metrics_file,omitempty"`
	Jobs        []JobSpec      `yaml:"jobs"`
}

// CacheConfig enables the Redis response cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string   `yaml:"redis_addr,omitempty"`
	RedisDB   int      `yaml:"redis_db,omitempty"`
	TTL       Duration `yaml:"ttl,omitempty"` // Default: 5m

	// Refresh purges each job's cached responses before it runs.
	Refresh bool `yaml:"refresh,omitempty"`
}

// Enabled reports whether a Redis address is configured.
func (c CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// JobSpec is one job entry. Zero values select the client and pagination
// defaults.
type JobSpec struct {
	Name        string            `yaml:"name"`
	Strategy    string            `yaml:"strategy"`
	URL         string            `yaml:"url"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	AccessToken string            `yaml:"access_token,omitempty"`
	Retries     int               `yaml:"retries,omitempty"` // Default: 3
	Backoff     Duration          `yaml:"backoff,omitempty"` // Default: 300ms
	Timeout     Duration          `yaml:"timeout,omitempty"` // Default: 30s
	Output      string            `yaml:"output"`
	Flatten     bool              `yaml:"flatten,omitempty"`
	Params      pagination.Params `yaml:"params,omitempty"`
}

// Job converts the entry into a fetcher job.
func (s JobSpec) Job() (fetcher.Job, error) {
	kind, err := pagination.ParseKind(s.Strategy)
	if err != nil {
		return fetcher.Job{}, err
	}

	cfg := client.DefaultConfig(s.URL)
	cfg.Headers = s.Headers
	cfg.AccessToken = s.AccessToken
	if s.Retries != 0 {
		cfg.MaxRetries = s.Retries
	}
	if s.Backoff != 0 {
		cfg.BackoffBase = time.Duration(s.Backoff)
	}
	if s.Timeout != 0 {
		cfg.Timeout = time.Duration(s.Timeout)
	}

	return fetcher.Job{
		Name:     s.Name,
		Strategy: kind,
		Client:   cfg,
		Params:   s.Params,
		Output:   s.Output,
		Flatten:  s.Flatten,
	}, nil
}

// Load reads and parses the job file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse expands environment references in data, decodes it and validates
// the result. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range f.Jobs {
		if f.Jobs[i].Name == "" {
			f.Jobs[i].Name = fmt.Sprintf("job-%d", i+1)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the file for errors. All problems are reported together.
func (f *File) Validate() error {
	var errs []error

	if f.Log.Level != "" {
		if _, err := logging.ParseLevel(string(f.Log.Level)); err != nil {
			errs = append(errs, fmt.Errorf("log: %w", err))
		}
	}
	if f.Cache.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("cache: redis_db must be >= 0 (got %d)", f.Cache.RedisDB))
	}
	if f.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache: ttl must be >= 0 (got %s)", time.Duration(f.Cache.TTL)))
	}

	if len(f.Jobs) == 0 {
		errs = append(errs, fmt.Errorf("at least one job is required"))
	}

	names := make(map[string]bool, len(f.Jobs))
	outputs := make(map[string]string, len(f.Jobs))
	for _, job := range f.Jobs {
		if names[job.Name] {
			errs = append(errs, fmt.Errorf("job %s: duplicate name", job.Name))
		}
		names[job.Name] = true

		if err := job.validate(); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.Name, err))
		}

		if job.Output != "" {
			if other, ok := outputs[job.Output]; ok {
				errs = append(errs, fmt.Errorf("job %s: output %s is also written by job %s", job.Name, job.Output, other))
			}
			outputs[job.Output] = job.Name
		}
	}

	return errors.Join(errs...)
}

func (s JobSpec) validate() error {
	if _, err := pagination.ParseKind(s.Strategy); err != nil {
		return err
	}
	if s.URL == "" {
		return fmt.Errorf("url is required")
	}
	if s.Output == "" {
		return fmt.Errorf("output is required")
	}
	if s.Retries < 0 {
		return fmt.Errorf("retries must be >= 0 (got %d)", s.Retries)
	}
	if s.Backoff < 0 {
		return fmt.Errorf("backoff must be >= 0 (got %s)", time.Duration(s.Backoff))
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %s)", time.Duration(s.Timeout))
	}
	return s.Params.Validate()
}

// Duration is a time.Duration that decodes from a Go duration string
// ("300ms", "1m30s") or from a plain number of seconds (0.3).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(math.Round(secs * float64(time.Second)))
		return nil
	}

	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
