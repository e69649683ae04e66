package permit

import (
	"fmt"
	"regexp"
	"strings"
)

// SatisfiesConditions reports whether every condition holds against ctx.
// An empty list always holds. Missing fields and unknown operators fail the
// predicate rather than erroring.
func SatisfiesConditions(conds []Condition, ctx Context) bool {
	for _, c := range conds {
		if !c.Evaluate(ctx) {
			return false
		}
	}
	return true
}

// Evaluate applies the condition to ctx.
func (c Condition) Evaluate(ctx Context) bool {
	actual, _ := ctx.Get(c.Field)
	switch c.Operator {
	case OpEquals:
		return actual.String() == c.Value.String()
	case OpNotEquals:
		return actual.String() != c.Value.String()
	case OpContains:
		return valueContains(actual, c.Value)
	case OpNotContains:
		return !valueContains(actual, c.Value)
	case OpIn:
		return valueIn(actual, c.Value)
	case OpNotIn:
		return !valueIn(actual, c.Value)
	case OpGreaterThan:
		// NaN compares false either way
		return actual.Float() > c.Value.Float()
	case OpLessThan:
		return actual.Float() < c.Value.Float()
	default:
		return false
	}
}

// String renders the condition in the short form accepted by ParseCondition.
// String values that would read back as something else are quoted.
func (c Condition) String() string {
	sym, ok := operatorSymbols[c.Operator]
	if !ok {
		sym = string(c.Operator)
	}
	val := c.Value.String()
	switch {
	case c.Value.Kind() == KindList:
		val = "[" + val + "]"
	case c.Value.Kind() == KindString && needsQuote(val):
		val = quoteLiteral(val)
	}
	return c.Field + " " + sym + " " + val
}

func needsQuote(s string) bool {
	return s == "" ||
		strings.TrimSpace(s) != s ||
		condNumRe.MatchString(s) ||
		strings.ContainsAny(s, " \t'\"") ||
		strings.HasPrefix(s, "[")
}

// quoteLiteral prefers single quotes, since the DSL uses double quotes to
// group tokens.
func quoteLiteral(s string) string {
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		return `"` + s + `"`
	}
	return "'" + s + "'"
}

// valueContains is substring for scalars and membership for lists.
func valueContains(actual, want Value) bool {
	if actual.Kind() == KindList {
		return containsString(actual.Strings(), want.String())
	}
	return strings.Contains(actual.String(), want.String())
}

// valueIn reports whether actual (or, for a list, any element of it) is a
// member of want.
func valueIn(actual, want Value) bool {
	if actual.IsNull() {
		return false
	}
	allowed := want.Strings()
	if actual.Kind() == KindList {
		for _, it := range actual.Strings() {
			if containsString(allowed, it) {
				return true
			}
		}
		return false
	}
	return containsString(allowed, actual.String())
}

var operatorSymbols = map[Operator]string{
	OpEquals:      "==",
	OpNotEquals:   "!=",
	OpContains:    "contains",
	OpNotContains: "!contains",
	OpIn:          "in",
	OpNotIn:       "not in",
	OpGreaterThan: ">",
	OpLessThan:    "<",
}

var (
	condListRe  = regexp.MustCompile(`^([A-Za-z0-9_\.\-]+)\s+(not\s+in|in)\s*\[([^\]]*)\]$`)
	condWordRe  = regexp.MustCompile(`^([A-Za-z0-9_\.\-]+)\s+(!contains|not_contains|contains|equals|not_equals|greater_than|less_than)\s+(.+)$`)
	condInfixRe = regexp.MustCompile(`^([A-Za-z0-9_\.\-]+)\s*(==|!=|>|<)\s*(.+)$`)
	condNumRe   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// ParseCondition parses the short textual form of a condition, e.g.
// `status == draft`, `amount > 100`, `region in [eu, us]`,
// `tags !contains legacy`.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Condition{}, fmt.Errorf("empty condition")
	}
	if m := condListRe.FindStringSubmatch(s); len(m) == 4 {
		op := OpIn
		if strings.HasPrefix(m[2], "not") {
			op = OpNotIn
		}
		return Condition{Field: m[1], Operator: op, Value: List(splitCSV(m[3])...)}, nil
	}
	if m := condWordRe.FindStringSubmatch(s); len(m) == 4 {
		op := Operator(m[2])
		if m[2] == "!contains" {
			op = OpNotContains
		}
		return Condition{Field: m[1], Operator: op, Value: literal(m[3])}, nil
	}
	if m := condInfixRe.FindStringSubmatch(s); len(m) == 4 {
		var op Operator
		switch m[2] {
		case "==":
			op = OpEquals
		case "!=":
			op = OpNotEquals
		case ">":
			op = OpGreaterThan
		case "<":
			op = OpLessThan
		}
		return Condition{Field: m[1], Operator: op, Value: literal(m[3])}, nil
	}
	return Condition{}, fmt.Errorf("unsupported condition syntax: %s", s)
}

// ParseConditions parses a list of conditions separated by " and ". An
// " and " inside a quoted value does not split.
func ParseConditions(s string) ([]Condition, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "true" {
		return nil, nil
	}
	parts := splitAnd(s)
	out := make([]Condition, 0, len(parts))
	for _, p := range parts {
		c, err := ParseCondition(p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func splitAnd(s string) []string {
	const sep = " and "
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(parts, s[start:])
}

func literal(raw string) Value {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		return String(raw[1 : len(raw)-1])
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return List(splitCSV(raw[1 : len(raw)-1])...)
	}
	if condNumRe.MatchString(raw) {
		return ValueOf(String(raw).Float())
	}
	return String(raw)
}
