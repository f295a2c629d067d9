// Package flatten turns decoded JSON documents into flat, dot-notated
// key/value maps suitable for span attributes.
//
//	{"a": "hello", "b": {"c": "world"}, "d": [{"e": "value"}, {"e": "test"}]}
//
// flattens to
//
//	{"a": "hello", "b.c": "world", "d.[1].e": "value", "d.[2].e": "test"}
package flatten

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Paths flattens obj into dot-separated paths, prefixed by prefix when it is
// not empty.
//
// Nested objects extend the path with their key. Array elements extend it
// with a 1-based ".[i]" segment and are themselves flattened when they are
// objects. Empty arrays and empty objects contribute nothing. Nil leaves are
// kept with a nil value so that a present-but-null key stays distinguishable
// from an absent one. Keys are used verbatim, including numeric ones.
func Paths(obj map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	walkObject(out, obj, prefix)
	return out
}

func walkObject(out map[string]any, obj map[string]any, prefix string) {
	for key, value := range obj {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		walkValue(out, value, path)
	}
}

func walkValue(out map[string]any, value any, path string) {
	switch v := value.(type) {
	case map[string]any:
		walkObject(out, v, path)
	case []any:
		for i, item := range v {
			itemPath := path + ".[" + strconv.Itoa(i+1) + "]"
			if obj, ok := item.(map[string]any); ok {
				walkObject(out, obj, itemPath)
				continue
			}
			out[itemPath] = item
		}
	default:
		out[path] = value
	}
}

// Option configures Attributes.
type Option interface {
	apply(*options)
}

type options struct {
	maxValueLength int
	maxAttributes  int
}

type maxValueLengthOption int

func (o maxValueLengthOption) apply(opts *options) { opts.maxValueLength = int(o) }

// WithMaxValueLength truncates string values to n characters. Default: 1024.
func WithMaxValueLength(n int) Option { return maxValueLengthOption(n) }

type maxAttributesOption int

func (o maxAttributesOption) apply(opts *options) { opts.maxAttributes = int(o) }

// WithMaxAttributes keeps at most n attributes. Default: 64.
func WithMaxAttributes(n int) Option { return maxAttributesOption(n) }

// NullValue is the attribute value recorded for a nil leaf.
const NullValue = "null"

// Attributes converts a flat map into span attributes in sorted key order.
//
// Strings, bools and numbers map to their attribute types; integral float64
// values, as produced by encoding/json, become Int64. Nil becomes NullValue.
// Anything else is recorded as its JSON text.
func Attributes(flat map[string]any, opts ...Option) []attribute.KeyValue {
	o := options{maxValueLength: 1024, maxAttributes: 64}
	for _, opt := range opts {
		opt.apply(&o)
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if o.maxAttributes > 0 && len(keys) > o.maxAttributes {
		keys = keys[:o.maxAttributes]
	}

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, toAttribute(k, flat[k], o.maxValueLength))
	}
	return attrs
}

func toAttribute(key string, value any, maxLen int) attribute.KeyValue {
	switch v := value.(type) {
	case nil:
		return attribute.String(key, NullValue)
	case string:
		return attribute.String(key, truncate(v, maxLen))
	case bool:
		return attribute.Bool(key, v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return attribute.Int64(key, int64(v))
		}
		return attribute.Float64(key, v)
	case float32:
		return attribute.Float64(key, float64(v))
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case int32:
		return attribute.Int64(key, int64(v))
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return attribute.Int64(key, i)
		}
		if f, err := v.Float64(); err == nil {
			return attribute.Float64(key, f)
		}
		return attribute.String(key, truncate(v.String(), maxLen))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return attribute.String(key, truncate(err.Error(), maxLen))
		}
		return attribute.String(key, truncate(string(b), maxLen))
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
