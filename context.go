package permit

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind tags the active member of a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is the narrow union carried by request contexts and condition
// operands: a string, a number, a bool, or a list of strings.
type Value struct {
	kind ValueKind
	s    string
	n    float64
	b    bool
	list []string
}

func String(s string) Value      { return Value{kind: KindString, s: s} }
func Number(n float64) Value     { return Value{kind: KindNumber, n: n} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func List(items ...string) Value { return Value{kind: KindList, list: append([]string(nil), items...)} }
func (v Value) Kind() ValueKind  { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) GoString() string { return v.kind.String() + "(" + v.String() + ")" }

// ValueOf converts a plain Go value into a Value. Unknown types are
// rendered with fmt.Sprint.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case float32:
		return Number(float64(t))
	case float64:
		return Number(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case []string:
		return List(t...)
	case []any:
		items := make([]string, 0, len(t))
		for _, it := range t {
			items = append(items, ValueOf(it).String())
		}
		return List(items...)
	default:
		return String(fmt.Sprint(t))
	}
}

// String renders the value in the form used by string comparisons.
// Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return strings.Join(v.list, ",")
	default:
		return ""
	}
}

// Float coerces the value to a number. Anything that is not numeric,
// including null, yields NaN.
func (v Value) Float() float64 {
	switch v.kind {
	case KindNumber:
		return v.n
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// Strings returns the value as a list. A string is split on commas.
func (v Value) Strings() []string {
	switch v.kind {
	case KindList:
		return v.list
	case KindNull:
		return nil
	case KindString:
		return splitCSV(v.s)
	default:
		return []string{v.String()}
	}
}

// Any returns the plain Go representation.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	case KindList:
		return append([]string(nil), v.list...)
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = ValueOf(raw)
	return nil
}

// canonical renders the value with its kind so that "1" and 1 never collide.
func (v Value) canonical(b *strings.Builder) {
	b.WriteString(v.kind.String())
	b.WriteByte(':')
	switch v.kind {
	case KindList:
		b.WriteByte('[')
		for i, it := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(it))
		}
		b.WriteByte(']')
	case KindString:
		b.WriteString(strconv.Quote(v.s))
	default:
		b.WriteString(v.String())
	}
}

// Context carries request attributes for constraint and condition checks.
type Context map[string]Value

// NewContext builds a Context from plain Go values.
func NewContext(kv map[string]any) Context {
	if len(kv) == 0 {
		return nil
	}
	c := make(Context, len(kv))
	for k, v := range kv {
		c[k] = ValueOf(v)
	}
	return c
}

// Get returns the value for key, or a null Value when absent.
func (c Context) Get(key string) (Value, bool) {
	v, ok := c[key]
	return v, ok
}

// With returns a copy of c with key set to v.
func (c Context) With(key string, v any) Context {
	out := make(Context, len(c)+1)
	for k, val := range c {
		out[k] = val
	}
	out[key] = ValueOf(v)
	return out
}

// Canonical serializes the context with keys sorted, so two contexts with
// the same entries always produce the same string.
func (c Context) Canonical() string {
	if len(c) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		c[k].canonical(&b)
	}
	b.WriteByte('}')
	return b.String()
}

// splitCSV splits items like "\"a\",\"b\"" or "a, b" into []string (trimmed, unquoted)
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "\"'")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
