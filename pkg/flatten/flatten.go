// Package flatten collapses nested JSON values into single-level objects
// with compound keys, so deeply nested records fit a CSV row.
package flatten

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultSeparator joins the parts of a compound key.
const DefaultSeparator = "_"

// Flatten flattens v using DefaultSeparator.
//
//	{"a": {"b": 1, "c": [2, 3]}}  =>  {"a_b": 1, "a_c_0": 2, "a_c_1": 3}
func Flatten(v any) map[string]any {
	return FlattenWith(v, DefaultSeparator)
}

// FlattenWith flattens v, joining key parts with sep. Object keys become
// path parts, array elements contribute their index. A scalar at the top
// level is stored under "". Empty objects and arrays produce no keys.
//
// Object keys are visited in sorted order. When two paths produce the same
// compound key the one visited last wins, so {"a": {"b": 1}, "a_b": 2}
// always yields {"a_b": 2}.
func FlattenWith(v any, sep string) map[string]any {
	out := make(map[string]any)
	walk(v, "", sep, out)
	return out
}

func walk(v any, prefix, sep string, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(t[k], prefix+k+sep, sep, out)
		}
	case []any:
		for i, child := range t {
			walk(child, prefix+strconv.Itoa(i)+sep, sep, out)
		}
	default:
		out[strings.TrimSuffix(prefix, sep)] = v
	}
}

// Records flattens every object record and leaves other records untouched.
func Records(records []any) []any {
	out := make([]any, len(records))
	for i, r := range records {
		switch r.(type) {
		case map[string]any, []any:
			out[i] = Flatten(r)
		default:
			out[i] = r
		}
	}
	return out
}
