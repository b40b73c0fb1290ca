package pagination

import (
	"context"
	"errors"
	"testing"
)

func TestSimple_List(t *testing.T) {
	r := &scriptedRequester{replies: []reply{{payload: items(1, 4)}}}

	records, err := NewSimple(r).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 4 {
		t.Errorf("len(records) = %d, want 4", len(records))
	}
	if len(r.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(r.calls))
	}
	if len(r.calls[0]) != 0 {
		t.Errorf("params = %v, want none", r.calls[0])
	}
}

func TestSimple_ObjectIsOneRecord(t *testing.T) {
	r := &scriptedRequester{replies: []reply{{payload: map[string]any{"name": "x"}}}}

	records, err := NewSimple(r).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestSimple_Failure(t *testing.T) {
	failure := errors.New("boom")
	r := &scriptedRequester{replies: []reply{{err: failure}}}

	records, err := NewSimple(r).FetchAll(context.Background())
	if !errors.Is(err, failure) || len(records) != 0 {
		t.Errorf("FetchAll() = %v, %v", records, err)
	}
}

func TestNested_ExtractsDataKey(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: map[string]any{"meta": map[string]any{"n": 2}, "data": items(1, 2)}},
	}}

	records, err := NewNested(r, Params{}).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if got := ids(t, records); len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("ids = %v, want [1 2]", got)
	}
}

func TestNested_CustomKey(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: map[string]any{"payload": map[string]any{"rows": items(1, 3)}, "rows": items(1, 1)}},
	}}

	records, err := NewNested(r, Params{DataKey: "rows"}).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestNested_FallsBackToRawResponse(t *testing.T) {
	r := &scriptedRequester{replies: []reply{
		{payload: map[string]any{"name": "x", "size": 3}},
	}}

	records, err := NewNested(r, Params{}).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if obj := records[0].(map[string]any); obj["name"] != "x" {
		t.Errorf("record = %v", obj)
	}
}
