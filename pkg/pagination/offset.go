package pagination

import (
	"context"
	"net/url"
	"strconv"
)

// Offset requests offset=0, Limit, 2*Limit, ... and reads records from
// DataKey. It stops when the response lacks DataKey or a page is shorter
// than Limit.
type Offset struct {
	requester Requester
	params    Params
	opts      options
}

// NewOffset creates an offset/limit strategy.
func NewOffset(r Requester, p Params, opts ...Option) *Offset {
	return &Offset{
		requester: r,
		params:    p.withDefaults("data"),
		opts:      buildOptions(KindOffset, opts),
	}
}

// Name implements Strategy.
func (s *Offset) Name() string { return string(KindOffset) }

// FetchAll implements Strategy.
func (s *Offset) FetchAll(ctx context.Context) ([]any, error) {
	p := s.params
	return collect(ctx, KindOffset, s.opts.logger, func(ctx context.Context, n int) ([]any, bool, error) {
		params := url.Values{}
		params.Set(p.OffsetParam, strconv.Itoa(n*p.Limit))
		params.Set(p.LimitParam, strconv.Itoa(p.Limit))

		resp, err := s.requester.Request(ctx, params)
		if err != nil {
			return nil, false, err
		}

		data, ok := field(resp, p.DataKey)
		if !ok {
			s.opts.logger.Debug().Str("data_key", p.DataKey).Msg("Data key missing from response")
			return nil, false, nil
		}

		records := asRecords(data)
		return records, len(records) >= p.Limit, nil
	})
}
