package pagination

import (
	"context"
	"errors"
	"testing"
)

func TestPaginated_StopsOnShortPage(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: items(1, 10)},
		{payload: items(11, 10)},
		{payload: items(21, 3)},
	}}

	s := NewPaginated(r, Params{PerPage: 10})
	records, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(records) != 23 {
		t.Errorf("len(records) = %d, want 23", len(records))
	}
	if len(r.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(r.calls))
	}

	for i, params := range r.calls {
		if got, want := params.Get("page"), itoa(i+1); got != want {
			t.Errorf("call %d page = %q, want %q", i, got, want)
		}
		if got := params.Get("per_page"); got != "10" {
			t.Errorf("call %d per_page = %q, want 10", i, got)
		}
	}

	got := ids(t, records)
	for i, id := range got {
		if id != itoa(i+1) {
			t.Fatalf("records out of order: %v", got)
		}
	}
}

func TestPaginated_StopsOnEmptyPage(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: items(1, 5)},
		{payload: []any{}},
	}}

	records, err := NewPaginated(r, Params{PerPage: 5}).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 5 {
		t.Errorf("len(records) = %d, want 5", len(records))
	}
	if len(r.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(r.calls))
	}
}

func TestPaginated_DataKey(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: map[string]any{"count": 3, "results": items(1, 2)}},
		{payload: map[string]any{"count": 3, "results": items(3, 1)}},
	}}

	s := NewPaginated(r, Params{PageParam: "_page", PerPageParam: "_limit", PerPage: 2, DataKey: "results"})
	records, err := s.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("len(records) = %d, want 3", len(records))
	}
	if r.calls[1].Get("_page") != "2" || r.calls[1].Get("_limit") != "2" {
		t.Errorf("second call params = %v", r.calls[1])
	}
}

func TestPaginated_MissingDataKeyUsesWholeResponse(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: map[string]any{"id": "only"}},
	}}

	records, err := NewPaginated(r, Params{PerPage: 10, DataKey: "results"}).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestPaginated_StartPage(t *testing.T) {
	r := &scriptedRequester{replies: []reply{{payload: items(1, 1)}}}

	_, _ = NewPaginated(r, Params{PerPage: 10, StartPage: 5}).FetchAll(context.Background())
	if got := r.calls[0].Get("page"); got != "5" {
		t.Errorf("page = %q, want 5", got)
	}
}

func TestPaginated_FirstRequestFails(t *testing.T) {
	failure := errors.New("retry attempts exhausted")
	r := &scriptedRequester{replies: []reply{{err: failure}}}

	records, err := NewPaginated(r, Params{}).FetchAll(context.Background())
	if !errors.Is(err, failure) {
		t.Errorf("FetchAll() error = %v, want %v", err, failure)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestPaginated_FailureKeepsEarlierPages(t *testing.T) {
	failure := errors.New("retry attempts exhausted")
	r := &scriptedRequester{replies: []reply{
		{payload: items(1, 2)},
		{err: failure},
	}}

	records, err := NewPaginated(r, Params{PerPage: 2}).FetchAll(context.Background())
	if !errors.Is(err, failure) {
		t.Errorf("FetchAll() error = %v, want %v", err, failure)
	}
	if len(records) != 2 {
		t.Errorf("len(records) = %d, want 2", len(records))
	}
}

func TestPaginated_Defaults(t *testing.T) {
	r := &scriptedRequester{replies: []reply{{payload: items(1, 1)}}}

	_, _ = NewPaginated(r, Params{}).FetchAll(context.Background())
	if got := r.calls[0].Get("page"); got != "1" {
		t.Errorf("page = %q, want 1", got)
	}
	if got := r.calls[0].Get("per_page"); got != "100" {
		t.Errorf("per_page = %q, want 100", got)
	}
}

func TestPaginated_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &scriptedRequester{}

	_, err := NewPaginated(r, Params{}).FetchAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() error = %v, want context.Canceled", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(r.calls))
	}
}
