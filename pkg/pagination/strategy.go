package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "restcsv_pages_fetched_total",
	Help: "Total pages fetched by strategy",
}, []string{"strategy"})

var (
	// ErrUnknownStrategy is returned for an unsupported strategy name.
	ErrUnknownStrategy = errors.New("unknown pagination strategy")

	// ErrRepeatedCursor is returned when the server hands back the cursor
	// that was just sent.
	ErrRepeatedCursor = errors.New("server returned the same cursor twice")
)

// Requester issues one request and returns the decoded JSON payload.
// *client.Client satisfies it.
type Requester interface {
	Request(ctx context.Context, params url.Values) (any, error)
}

// Strategy fetches an entire collection.
type Strategy interface {
	// Name returns the strategy kind.
	Name() string

	// FetchAll fetches pages until a stop condition and returns the records
	// in fetch order. On a request failure it returns the records gathered
	// before the failure along with the error.
	FetchAll(ctx context.Context) ([]any, error)
}

// Option configures a strategy.
type Option func(*options)

type options struct {
	logger zerolog.Logger
}

// WithLogger sets the logger used for page progress.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(kind Kind, opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With().Str("strategy", string(kind)).Logger()
	return o
}

// New builds the strategy named by kind.
func New(kind Kind, r Requester, p Params, opts ...Option) (Strategy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case KindPaginated:
		return NewPaginated(r, p, opts...), nil
	case KindOffset:
		return NewOffset(r, p, opts...), nil
	case KindCursor:
		return NewCursor(r, p, opts...), nil
	case KindSimple:
		return NewSimple(r, opts...), nil
	case KindNested:
		return NewNested(r, p, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}

// step fetches page number n (0-indexed) and reports whether to continue.
type step func(ctx context.Context, n int) (records []any, more bool, err error)

// collect drives the shared fetch/accumulate/continue loop.
func collect(ctx context.Context, kind Kind, logger zerolog.Logger, next step) ([]any, error) {
	start := time.Now()
	var all []any

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		records, more, err := next(ctx, n)
		all = append(all, records...)
		if err != nil {
			logger.Warn().
				Err(err).
				Int("page", n+1).
				Int("records", len(all)).
				Msg("Request failed, stopping pagination")
			return all, fmt.Errorf("page %d: %w", n+1, err)
		}

		pagesFetchedTotal.WithLabelValues(string(kind)).Inc()

		if len(records) == 0 {
			logger.Debug().Int("page", n+1).Msg("Empty page, stopping pagination")
			break
		}

		logger.Debug().
			Int("page", n+1).
			Int("page_records", len(records)).
			Int("records", len(all)).
			Msg("Page fetched")

		if !more {
			break
		}
	}

	logger.Info().
		Int("records", len(all)).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return all, nil
}

// asRecords normalizes an extracted payload into records. A list is split
// into its elements; any other non-empty value is a single record.
func asRecords(v any) []any {
	if isEmpty(v) {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// isEmpty reports whether v carries no data.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case string:
		return t == ""
	case bool:
		return !t
	default:
		return false
	}
}

// field returns resp[key] when resp is an object containing key.
func field(resp any, key string) (any, bool) {
	obj, ok := resp.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// cursorString renders a cursor value. Null, false and "" mean no cursor.
func cursorString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		return fmt.Sprint(t)
	}
}
