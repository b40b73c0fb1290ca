package pagination

import (
	"context"
	"net/url"
)

// Cursor sends no cursor on the first call and then the NextCursorKey value
// of the previous response. It stops when the response lacks DataKey or
// carries no next cursor.
type Cursor struct {
	requester Requester
	params    Params
	opts      options
}

// NewCursor creates a cursor strategy.
func NewCursor(r Requester, p Params, opts ...Option) *Cursor {
	return &Cursor{
		requester: r,
		params:    p.withDefaults("data"),
		opts:      buildOptions(KindCursor, opts),
	}
}

// Name implements Strategy.
func (s *Cursor) Name() string { return string(KindCursor) }

// FetchAll implements Strategy.
func (s *Cursor) FetchAll(ctx context.Context) ([]any, error) {
	p := s.params
	cursor := ""

	return collect(ctx, KindCursor, s.opts.logger, func(ctx context.Context, n int) ([]any, bool, error) {
		params := url.Values{}
		if cursor != "" {
			params.Set(p.CursorParam, cursor)
		}

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

		raw, _ := field(resp, p.NextCursorKey)
		next := cursorString(raw)
		if next != "" && next == cursor {
			return records, false, ErrRepeatedCursor
		}
		cursor = next

		return records, next != "", nil
	})
}
