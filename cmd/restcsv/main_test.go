package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/restcsv/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_SingleJob(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetQueryResponses("/items", "page", map[string]testutil.MockResponse{
		"1": testutil.NewJSONResponse(testutil.Items(1, 2)),
		"2": testutil.NewJSONResponse(testutil.Items(3, 1)),
	}, testutil.NewJSONResponse([]any{}))

	out := filepath.Join(t.TempDir(), "items.csv")
	code, stdout, stderr := runCLI(t,
		"-url", mock.URL()+"/items",
		"-strategy", "paginated",
		"-param", "per_page=2",
		"-header", "X-Api-Version=2",
		"-token", "secret",
		"-out", out,
	)
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "success") {
		t.Errorf("summary missing outcome:\n%s", stdout)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "id\n1\n2\n3\n" {
		t.Errorf("output = %q", data)
	}

	reqs := mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	first := reqs[0]
	if first.Query.Get("per_page") != "2" || first.Query.Get("page") != "1" {
		t.Errorf("query = %v", first.Query)
	}
	if first.Header.Get("Authorization") != "Bearer secret" {
		t.Errorf("Authorization = %q", first.Header.Get("Authorization"))
	}
	if first.Header.Get("X-Api-Version") != "2" {
		t.Errorf("X-Api-Version = %q", first.Header.Get("X-Api-Version"))
	}
}

func TestRun_FailureExitsNonZero(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/down", testutil.NewServerErrorResponse())

	out := filepath.Join(t.TempDir(), "down.csv")
	code, stdout, _ := runCLI(t,
		"-url", mock.URL()+"/down",
		"-backoff", "1ms",
		"-out", out,
	)
	if code != exitFail {
		t.Errorf("exit code = %d, want %d", code, exitFail)
	}
	if !strings.Contains(stdout, "empty") {
		t.Errorf("summary missing empty outcome:\n%s", stdout)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output should not exist, stat error = %v", err)
	}
}

func TestRun_ConfigFile(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/countries", testutil.NewJSONResponse([]map[string]any{
		{"name": map[string]any{"common": "Peru"}, "cca2": "PE"},
	}))
	mock.SetQueryResponses("/events", "cursor", map[string]testutil.MockResponse{
		"":  testutil.NewJSONResponse(map[string]any{"data": testutil.Items(1, 2), "next_cursor": "b"}),
		"b": testutil.NewJSONResponse(map[string]any{"data": testutil.Items(3, 2), "next_cursor": nil}),
	}, testutil.NewNotFoundResponse())

	dir := t.TempDir()
	t.Setenv("RESTCSV_TEST_BASE", mock.URL())
	jobs := `
log:
  level: warn
metrics_file: ` + filepath.Join(dir, "restcsv.prom") + `
jobs:
  - name: countries
    strategy: simple
    url: ${RESTCSV_TEST_BASE}/countries
    output: ` + filepath.Join(dir, "countries.csv") + `
    flatten: true
  - name: events
    strategy: cursor
    url: ${RESTCSV_TEST_BASE}/events
    output: ` + filepath.Join(dir, "events.csv") + `
`
	path := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(path, []byte(jobs), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runCLI(t, "-config", path)
	if code != exitOK {
		t.Fatalf("exit code = %d, want 0\nstdout: %s\nstderr: %s", code, stdout, stderr)
	}
	for _, name := range []string{"countries", "events"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("summary missing job %s:\n%s", name, stdout)
		}
	}

	countries, err := os.ReadFile(filepath.Join(dir, "countries.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(countries) != "cca2,name_common\nPE,Peru\n" {
		t.Errorf("countries.csv = %q", countries)
	}

	events, err := os.ReadFile(filepath.Join(dir, "events.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(events) != "id\n1\n2\n3\n4\n" {
		t.Errorf("events.csv = %q", events)
	}

	prom, err := os.ReadFile(filepath.Join(dir, "restcsv.prom"))
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(prom), "restcsv_runs_total") {
		t.Errorf("metrics file missing restcsv_runs_total")
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no url", []string{"-out", "x.csv"}, "-url or -config is required"},
		{"no output", []string{"-url", "http://example.com"}, "-out is required"},
		{"bad strategy", []string{"-url", "http://example.com", "-out", "x.csv", "-strategy", "scroll"}, "unknown pagination strategy"},
		{"bad param", []string{"-url", "http://example.com", "-out", "x.csv", "-param", "page_size=10"}, `unknown param "page_size"`},
		{"negative start page", []string{"-url", "http://example.com", "-out", "x.csv", "-param", "start_page=-1"}, "start_page must be >= 0"},
		{"bad header", []string{"-url", "http://example.com", "-out", "x.csv", "-header", "novalue"}, "want name=value"},
		{"bad log level", []string{"-url", "http://example.com", "-out", "x.csv", "-log-level", "loud"}, "unknown log level"},
		{"missing config", []string{"-config", "/does/not/exist.yaml"}, "read config"},
		{"url with config", []string{"-config", "jobs.yaml", "-url", "http://example.com"}, "-url cannot be combined with -config"},
		{"out with config", []string{"-config", "jobs.yaml", "-out", "x.csv"}, "-out cannot be combined with -config"},
		{"extra args", []string{"-url", "http://example.com", "-out", "x.csv", "extra"}, "unexpected arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != exitUsage {
				t.Errorf("exit code = %d, want %d", code, exitUsage)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestKVFlag(t *testing.T) {
	var f kvFlag
	for _, s := range []string{"a=1", "b=x=y", "a=2"} {
		if err := f.Set(s); err != nil {
			t.Fatalf("Set(%q) error = %v", s, err)
		}
	}

	if got := f.String(); got != "a=1,b=x=y,a=2" {
		t.Errorf("String() = %q", got)
	}

	want := map[string]string{"a": "2", "b": "x=y"}
	if got := f.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("Map() = %v, want %v", got, want)
	}

	if err := f.Set("=1"); err == nil {
		t.Error("Expected error for empty name")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("RESTCSV_TEST_VALUE", "set")

	if got := getEnv("RESTCSV_TEST_VALUE", "default"); got != "set" {
		t.Errorf("getEnv() = %q, want set", got)
	}
	if got := getEnv("RESTCSV_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
}

const overrideJobs = `
jobs:
  - name: plain
    strategy: simple
    url: https://api.example.com/plain
    output: plain.csv
    headers:
      X-Api-Version: "1"
      X-Team: data
  - name: tuned
    strategy: offset
    url: https://api.example.com/tuned
    output: tuned.csv
    access_token: from-file
    retries: 5
    backoff: 1s
    params:
      limit: 50
      data_key: results
`

func writeJobs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func planFor(t *testing.T, args ...string) *plan {
	t.Helper()
	var stderr bytes.Buffer
	opts, err := parseFlags(args, &stderr)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	p, err := buildPlan(opts)
	if err != nil {
		t.Fatalf("buildPlan() error = %v", err)
	}
	return p
}

func TestBuildPlan_FlagsOverrideConfigJobs(t *testing.T) {
	path := writeJobs(t, overrideJobs)
	p := planFor(t,
		"-config", path,
		"-token", "SECRET",
		"-retries", "7",
		"-backoff", "50ms",
		"-timeout", "5s",
		"-flatten",
		"-header", "X-Api-Version=2",
		"-param", "limit=10",
	)

	if len(p.jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(p.jobs))
	}
	for _, job := range p.jobs {
		if job.Client.AccessToken != "SECRET" {
			t.Errorf("%s: AccessToken = %q, want SECRET", job.Name, job.Client.AccessToken)
		}
		if job.Client.MaxRetries != 7 {
			t.Errorf("%s: MaxRetries = %d, want 7", job.Name, job.Client.MaxRetries)
		}
		if job.Client.BackoffBase != 50*time.Millisecond {
			t.Errorf("%s: BackoffBase = %s, want 50ms", job.Name, job.Client.BackoffBase)
		}
		if job.Client.Timeout != 5*time.Second {
			t.Errorf("%s: Timeout = %s, want 5s", job.Name, job.Client.Timeout)
		}
		if !job.Flatten {
			t.Errorf("%s: Flatten = false, want true", job.Name)
		}
		if job.Client.Headers["X-Api-Version"] != "2" {
			t.Errorf("%s: X-Api-Version = %q, want 2", job.Name, job.Client.Headers["X-Api-Version"])
		}
		if job.Params.Limit != 10 {
			t.Errorf("%s: Limit = %d, want 10", job.Name, job.Params.Limit)
		}
	}

	plain := p.jobs[0]
	if plain.Client.Headers["X-Team"] != "data" {
		t.Errorf("file header dropped: %v", plain.Client.Headers)
	}
	tuned := p.jobs[1]
	if tuned.Params.DataKey != "results" {
		t.Errorf("file param dropped: DataKey = %q", tuned.Params.DataKey)
	}
}

func TestBuildPlan_ConfigValuesKeptWithoutFlags(t *testing.T) {
	t.Setenv("RESTCSV_TOKEN", "from-env")
	path := writeJobs(t, overrideJobs)
	p := planFor(t, "-config", path)

	plain, tuned := p.jobs[0], p.jobs[1]
	if plain.Client.AccessToken != "from-env" {
		t.Errorf("plain: AccessToken = %q, want token from RESTCSV_TOKEN", plain.Client.AccessToken)
	}
	if tuned.Client.AccessToken != "from-file" {
		t.Errorf("tuned: AccessToken = %q, want from-file", tuned.Client.AccessToken)
	}
	if tuned.Client.MaxRetries != 5 || tuned.Client.BackoffBase != time.Second {
		t.Errorf("tuned: retries=%d backoff=%s, want 5/1s", tuned.Client.MaxRetries, tuned.Client.BackoffBase)
	}
	if tuned.Params.Limit != 50 {
		t.Errorf("tuned: Limit = %d, want 50", tuned.Params.Limit)
	}
	if plain.Flatten {
		t.Error("plain: Flatten = true, want false")
	}
}

func TestBuildPlan_BadParamWithConfig(t *testing.T) {
	path := writeJobs(t, overrideJobs)
	code, _, stderr := runCLI(t, "-config", path, "-param", "page_size=10")
	if code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, `unknown param "page_size"`) {
		t.Errorf("stderr = %q", stderr)
	}
}
