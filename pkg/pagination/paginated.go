package pagination

import (
	"context"
	"net/url"
	"strconv"
)

// Paginated requests page numbers StartPage, StartPage+1, ... with a fixed
// page size. It stops when a page is empty or shorter than PerPage.
type Paginated struct {
	requester Requester
	params    Params
	opts      options
}

// NewPaginated creates a page-number strategy.
func NewPaginated(r Requester, p Params, opts ...Option) *Paginated {
	return &Paginated{
		requester: r,
		params:    p.withDefaults(p.DataKey),
		opts:      buildOptions(KindPaginated, opts),
	}
}

// Name implements Strategy.
func (s *Paginated) Name() string { return string(KindPaginated) }

// FetchAll implements Strategy.
func (s *Paginated) FetchAll(ctx context.Context) ([]any, error) {
	p := s.params
	return collect(ctx, KindPaginated, s.opts.logger, func(ctx context.Context, n int) ([]any, bool, error) {
		params := url.Values{}
		params.Set(p.PageParam, strconv.Itoa(p.StartPage+n))
		params.Set(p.PerPageParam, strconv.Itoa(p.PerPage))

		resp, err := s.requester.Request(ctx, params)
		if err != nil {
			return nil, false, err
		}

		data := resp
		if p.DataKey != "" {
			if v, ok := field(resp, p.DataKey); ok {
				data = v
			}
		}

		records := asRecords(data)
		return records, len(records) >= p.PerPage, nil
	})
}
