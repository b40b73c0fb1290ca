package pagination

import (
	"context"
)

// Simple makes one request and returns the whole response as the records.
type Simple struct {
	requester Requester
	opts      options
}

// NewSimple creates a single-call strategy.
func NewSimple(r Requester, opts ...Option) *Simple {
	return &Simple{
		requester: r,
		opts:      buildOptions(KindSimple, opts),
	}
}

// Name implements Strategy.
func (s *Simple) Name() string { return string(KindSimple) }

// FetchAll implements Strategy.
func (s *Simple) FetchAll(ctx context.Context) ([]any, error) {
	return collect(ctx, KindSimple, s.opts.logger, func(ctx context.Context, n int) ([]any, bool, error) {
		resp, err := s.requester.Request(ctx, nil)
		if err != nil {
			return nil, false, err
		}
		return asRecords(resp), false, nil
	})
}

// Nested makes one request and returns resp[DataKey] when present, else
// the raw response.
type Nested struct {
	requester Requester
	dataKey   string
	opts      options
}

// NewNested creates a single-call strategy that extracts DataKey.
func NewNested(r Requester, p Params, opts ...Option) *Nested {
	return &Nested{
		requester: r,
		dataKey:   p.withDefaults("data").DataKey,
		opts:      buildOptions(KindNested, opts),
	}
}

// Name implements Strategy.
func (s *Nested) Name() string { return string(KindNested) }

// FetchAll implements Strategy.
func (s *Nested) FetchAll(ctx context.Context) ([]any, error) {
	return collect(ctx, KindNested, s.opts.logger, func(ctx context.Context, n int) ([]any, bool, error) {
		resp, err := s.requester.Request(ctx, nil)
		if err != nil {
			return nil, false, err
		}
		if v, ok := field(resp, s.dataKey); ok {
			return asRecords(v), false, nil
		}
		return asRecords(resp), false, nil
	})
}
