// Package hostlist expands compact range expressions such as "[1-4,7]" or
// "x3000c0s[1-3]b0n[0-1]" into the list of values they denote.
//
// Terms are separated by commas outside brackets. A term that is a single
// bracket group with nothing around it is a numeric range list; any other term
// is a host pattern whose bracket groups expand as a cartesian product, left to
// right. Both dialects accept the same bracket syntax, so "[1-3]" alone always
// means the numbers 1, 2, 3.
package hostlist

import (
	"fmt"
	"strconv"
	"strings"
)

// Limit caps the number of values one expression may produce.
const Limit = 1 << 16

// Error describes a malformed expression.
type Error struct {
	Expr string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("malformed hostlist %q: %s", e.Expr, e.Msg)
}

// IsExpression reports whether s contains range syntax at all.
func IsExpression(s string) bool {
	return strings.ContainsAny(s, "[]")
}

// Expand returns the values denoted by expr. Plain comma lists pass through
// with empty items dropped.
func Expand(expr string) ([]string, error) {
	terms, err := splitTerms(expr)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		var values []string
		if strings.HasPrefix(term, "[") && strings.HasSuffix(term, "]") && strings.Count(term, "[") == 1 {
			values, err = expandGroup(expr, term[1:len(term)-1])
		} else {
			values, err = expandHost(expr, term)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, values...)
		if len(out) > Limit {
			return nil, &Error{Expr: expr, Msg: fmt.Sprintf("expands to more than %d values", Limit)}
		}
	}
	return out, nil
}

func splitTerms(expr string) ([]string, error) {
	var (
		terms []string
		depth int
		start int
	)
	for i, r := range expr {
		switch r {
		case '[':
			if depth > 0 {
				return nil, &Error{Expr: expr, Msg: "nested brackets"}
			}
			depth++
		case ']':
			if depth == 0 {
				return nil, &Error{Expr: expr, Msg: "unbalanced ']'"}
			}
			depth--
		case ',':
			if depth == 0 {
				terms = append(terms, expr[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, &Error{Expr: expr, Msg: "unbalanced '['"}
	}
	return append(terms, expr[start:]), nil
}

func expandHost(expr, term string) ([]string, error) {
	results := []string{""}
	for term != "" {
		open := strings.IndexByte(term, '[')
		if open < 0 {
			for i := range results {
				results[i] += term
			}
			break
		}
		prefix := term[:open]
		end := strings.IndexByte(term[open:], ']') + open
		values, err := expandGroup(expr, term[open+1:end])
		if err != nil {
			return nil, err
		}
		if len(results)*len(values) > Limit {
			return nil, &Error{Expr: expr, Msg: fmt.Sprintf("expands to more than %d values", Limit)}
		}
		next := make([]string, 0, len(results)*len(values))
		for _, r := range results {
			for _, v := range values {
				next = append(next, r+prefix+v)
			}
		}
		results = next
		term = term[end+1:]
	}
	return results, nil
}

// expandGroup expands the inside of one bracket group: "1-3,7,09-11".
func expandGroup(expr, body string) ([]string, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &Error{Expr: expr, Msg: "empty range"}
	}
	var out []string
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			if _, err := strconv.Atoi(part); err != nil {
				return nil, &Error{Expr: expr, Msg: fmt.Sprintf("%q is not a number", part)}
			}
			out = append(out, part)
			continue
		}
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, &Error{Expr: expr, Msg: fmt.Sprintf("%q is not a number", lo)}
		}
		to, err := strconv.Atoi(hi)
		if err != nil {
			return nil, &Error{Expr: expr, Msg: fmt.Sprintf("%q is not a number", hi)}
		}
		if from > to {
			return nil, &Error{Expr: expr, Msg: fmt.Sprintf("range %s is descending", part)}
		}
		if to-from >= Limit {
			return nil, &Error{Expr: expr, Msg: fmt.Sprintf("range %s is too large", part)}
		}
		width := 0
		if len(lo) > 1 && lo[0] == '0' {
			width = len(lo)
		}
		for n := from; n <= to; n++ {
			out = append(out, fmt.Sprintf("%0*d", width, n))
		}
	}
	return out, nil
}
