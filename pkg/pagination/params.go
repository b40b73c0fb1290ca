package pagination

import (
	"fmt"
	"strconv"
)

// Kind names a pagination strategy.
type Kind string

const (
	KindPaginated Kind = "paginated"
	KindOffset    Kind = "offset"
	KindCursor    Kind = "cursor"
	KindSimple    Kind = "simple"
	KindNested    Kind = "nested"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{KindPaginated, KindOffset, KindCursor, KindSimple, KindNested}

// ParseKind converts a strategy name into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Params holds the strategy specific request parameters. Each strategy
// reads only the fields it needs; zero values select the defaults below.
type Params struct {
	// Page number pagination
	PageParam    string `yaml:"page_param"`     // default "page"
	PerPageParam string `yaml:"per_page_param"` // default "per_page"
	PerPage      int    `yaml:"per_page"`       // default 100
	StartPage    int    `yaml:"start_page"`     // default 1

	// Offset pagination
	OffsetParam string `yaml:"offset_param"` // default "offset"
	LimitParam  string `yaml:"limit_param"`  // default "limit"
	Limit       int    `yaml:"limit"`        // default 100

	// Cursor pagination
	CursorParam   string `yaml:"cursor_param"`    // default "cursor"
	NextCursorKey string `yaml:"next_cursor_key"` // default "next_cursor"

	// DataKey names the response field holding the records. Offset, cursor
	// and nested default to "data"; paginated uses the whole response when
	// DataKey is empty or absent from the response.
	DataKey string `yaml:"data_key"`
}

// DefaultParams returns the defaults shared by all strategies.
func DefaultParams() Params {
	return Params{
		PageParam:     "page",
		PerPageParam:  "per_page",
		PerPage:       100,
		StartPage:     1,
		OffsetParam:   "offset",
		LimitParam:    "limit",
		Limit:         100,
		CursorParam:   "cursor",
		NextCursorKey: "next_cursor",
	}
}

// Validate rejects negative numeric parameters. Zero selects the default.
func (p Params) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"per_page", p.PerPage},
		{"start_page", p.StartPage},
		{"limit", p.Limit},
	} {
		if f.value < 0 {
			return fmt.Errorf("params: %s must be >= 0 (got %d)", f.name, f.value)
		}
	}
	return nil
}

// withDefaults fills zero fields. dataKey is the strategy's DataKey default.
func (p Params) withDefaults(dataKey string) Params {
	d := DefaultParams()
	if p.PageParam == "" {
		p.PageParam = d.PageParam
	}
	if p.PerPageParam == "" {
		p.PerPageParam = d.PerPageParam
	}
	if p.PerPage <= 0 {
		p.PerPage = d.PerPage
	}
	if p.StartPage == 0 {
		p.StartPage = d.StartPage
	}
	if p.OffsetParam == "" {
		p.OffsetParam = d.OffsetParam
	}
	if p.LimitParam == "" {
		p.LimitParam = d.LimitParam
	}
	if p.Limit <= 0 {
		p.Limit = d.Limit
	}
	if p.CursorParam == "" {
		p.CursorParam = d.CursorParam
	}
	if p.NextCursorKey == "" {
		p.NextCursorKey = d.NextCursorKey
	}
	if p.DataKey == "" {
		p.DataKey = dataKey
	}
	return p
}

// Set assigns a parameter by its yaml name, e.g. Set("per_page", "10").
func (p *Params) Set(name, value string) error {
	strField := map[string]*string{
		"page_param":      &p.PageParam,
		"per_page_param":  &p.PerPageParam,
		"offset_param":    &p.OffsetParam,
		"limit_param":     &p.LimitParam,
		"cursor_param":    &p.CursorParam,
		"next_cursor_key": &p.NextCursorKey,
		"data_key":        &p.DataKey,
	}
	if f, ok := strField[name]; ok {
		*f = value
		return nil
	}

	intField := map[string]*int{
		"per_page":   &p.PerPage,
		"start_page": &p.StartPage,
		"limit":      &p.Limit,
	}
	if f, ok := intField[name]; ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		*f = n
		return nil
	}

	return fmt.Errorf("unknown param %q", name)
}
