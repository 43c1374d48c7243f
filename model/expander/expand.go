package expander

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// Scope exposes the values a template may reference: input, state, scoring
// and one entry per completed step.
type Scope map[string]interface{}

// resolver handles one template value shape. A resolver either claims the
// value (returning the resolved result and true) or passes it down the chain.
type resolver interface {
	resolve(c *Chain, value interface{}, scope Scope) (interface{}, bool)
}

// Chain resolves template values through an ordered list of shape resolvers.
// The chain is stateless; Expand is a pure function of (value, scope).
type Chain struct {
	resolvers []resolver
}

// New returns the default resolver chain: string, slice, map, passthrough.
func New() *Chain {
	return &Chain{resolvers: []resolver{
		stringResolver{},
		sliceResolver{},
		mapResolver{},
		passthroughResolver{},
	}}
}

// Expand resolves all ${...} references in value against scope. Values
// without template expressions are returned unchanged; references to
// undefined paths resolve to nil rather than failing.
func (c *Chain) Expand(value interface{}, scope Scope) interface{} {
	for _, r := range c.resolvers {
		if out, ok := r.resolve(c, value, scope); ok {
			return out
		}
	}
	return value
}

type stringResolver struct{}

func (stringResolver) resolve(c *Chain, value interface{}, scope Scope) (interface{}, bool) {
	text, ok := value.(string)
	if !ok {
		return nil, false
	}
	if !strings.Contains(text, "${") {
		return text, true
	}

	// A string that is one single ${...} expression resolves to the typed
	// value, not its textual form.
	if strings.HasPrefix(text, "${") {
		if end := matchingBrace(text); end == len(text)-1 {
			return evaluate(text[2:end], scope), true
		}
	}

	// Embedded expressions are replaced by their stringified values.
	var out strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		end := matchingBrace(rest[start:])
		if end == -1 {
			out.WriteString(rest[start:])
			break
		}
		end += start
		out.WriteString(stringify(evaluate(rest[start+2:end], scope)))
		rest = rest[end+1:]
	}
	return out.String(), true
}

type sliceResolver struct{}

func (sliceResolver) resolve(c *Chain, value interface{}, scope Scope) (interface{}, bool) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, false
	}
	expanded := make([]interface{}, len(items))
	for i, item := range items {
		expanded[i] = c.Expand(item, scope)
	}
	return expanded, true
}

type mapResolver struct{}

func (mapResolver) resolve(c *Chain, value interface{}, scope Scope) (interface{}, bool) {
	entries, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	expanded := make(map[string]interface{}, len(entries))
	for key, item := range entries {
		expandedKey := key
		if strings.Contains(key, "${") {
			if text, ok := c.Expand(key, scope).(string); ok {
				expandedKey = text
			}
		}
		expanded[expandedKey] = c.Expand(item, scope)
	}
	return expanded, true
}

type passthroughResolver struct{}

func (passthroughResolver) resolve(_ *Chain, value interface{}, _ Scope) (interface{}, bool) {
	return value, true
}

// evaluate resolves a single expression body, without the ${} delimiters.
// Plain paths are navigated directly; expressions containing operators are
// delegated to the expression engine. Unresolvable expressions yield nil.
func evaluate(body string, scope Scope) interface{} {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	if containsOperators(body) {
		out, err := expr.Eval(body, map[string]interface{}(scope))
		if err != nil {
			return nil
		}
		return out
	}
	return resolvePath(body, scope)
}

// matchingBrace returns the index of the brace closing the leading "${",
// accounting for nested braces, or -1 when unbalanced.
func matchingBrace(s string) int {
	if !strings.HasPrefix(s, "${") {
		return -1
	}
	depth := 0
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var operators = []string{"==", "!=", ">=", "<=", "&&", "||", "+", "*", "/", "%", ">", "<", "?"}

// containsOperators reports whether the expression needs the expression
// engine rather than plain path navigation.
func containsOperators(s string) bool {
	for _, op := range operators {
		if strings.Contains(s, op) {
			return true
		}
	}
	// Only a spaced minus counts as subtraction; hyphens inside step ids
	// and agent names stay path characters.
	return strings.Contains(s, " - ")
}

// resolvePath navigates a dot/index path such as "step1.output.items[0].id".
func resolvePath(path string, scope Scope) interface{} {
	var current interface{} = map[string]interface{}(scope)
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			i++
		case '[':
			close := strings.IndexByte(path[i:], ']')
			if close == -1 {
				return nil
			}
			index, err := strconv.Atoi(path[i+1 : i+close])
			if err != nil {
				return nil
			}
			current = elementAt(current, index)
			if current == nil {
				return nil
			}
			i += close + 1
		default:
			end := i
			for end < len(path) && path[end] != '.' && path[end] != '[' {
				end++
			}
			entries, ok := current.(map[string]interface{})
			if !ok {
				return nil
			}
			if current, ok = entries[path[i:end]]; !ok {
				return nil
			}
			i = end
		}
	}
	return current
}

func elementAt(value interface{}, index int) interface{} {
	if index < 0 {
		return nil
	}
	switch items := value.(type) {
	case []interface{}:
		if index < len(items) {
			return items[index]
		}
	case []string:
		if index < len(items) {
			return items[index]
		}
	case []int:
		if index < len(items) {
			return items[index]
		}
	}
	return nil
}

// stringify converts a resolved value to its interpolated textual form.
func stringify(value interface{}) string {
	switch actual := value.(type) {
	case nil:
		return ""
	case string:
		return actual
	case bool:
		return strconv.FormatBool(actual)
	case int:
		return strconv.Itoa(actual)
	case int64:
		return strconv.FormatInt(actual, 10)
	case float64:
		return strconv.FormatFloat(actual, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", actual)
	}
}
