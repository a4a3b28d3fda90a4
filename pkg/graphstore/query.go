package graphstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/memg/memg-core/pkg/memerr"
)

// ParsedQuery is a small MATCH/WHERE/RETURN parametric query subset.
// It supports exactly the shape
// pkg/retrieval's graph path needs:
//
//	MATCH (n:TYPE) WHERE n.field OP $param AND n.field2 OP $param2 RETURN n LIMIT $limit
//
// TYPE, the WHERE clause, and LIMIT are all optional. Grounded on the
// Clause/WhereClause AST split used in pkg/cypher/parser.go,
// scaled down to the fragment this pipeline actually issues.
type ParsedQuery struct {
	NodeType string
	Where    []Condition
	Limit    int // 0 means unset
}

// Condition is one `n.field OP value` term, ANDed with its siblings.
type Condition struct {
	Field string
	Op    string // "=", ">=", "<=", ">", "<"
	Value any
}

// ParseQuery parses `text`, resolving any `$name` tokens against params.
func ParseQuery(text string, params map[string]any) (ParsedQuery, error) {
	var q ParsedQuery
	fields := tokenize(text)
	i := 0

	if i >= len(fields) || !strings.EqualFold(fields[i], "MATCH") {
		return q, memerr.Wrap(memerr.KindInvalidInput, "graphstore.ParseQuery",
			fmt.Errorf("expected MATCH: %w", memerr.ErrInvalidInput))
	}
	i++
	if i >= len(fields) {
		return q, memerr.Wrap(memerr.KindInvalidInput, "graphstore.ParseQuery",
			fmt.Errorf("truncated MATCH pattern: %w", memerr.ErrInvalidInput))
	}
	pattern := fields[i]
	i++
	// tokenize splits "(" and ")" off, so rejoin the pattern up to ")".
	if pattern == "(" {
		for i < len(fields) && !strings.HasSuffix(pattern, ")") {
			pattern += fields[i]
			i++
		}
	}
	nodeType, err := parsePattern(pattern)
	if err != nil {
		return q, err
	}
	q.NodeType = nodeType

	if i < len(fields) && strings.EqualFold(fields[i], "WHERE") {
		i++
		var conds []Condition
		for i < len(fields) {
			if strings.EqualFold(fields[i], "RETURN") {
				break
			}
			if strings.EqualFold(fields[i], "AND") {
				i++
				continue
			}
			cond, consumed, err := parseCondition(fields[i:], params)
			if err != nil {
				return q, err
			}
			conds = append(conds, cond)
			i += consumed
		}
		q.Where = conds
	}

	if i < len(fields) && strings.EqualFold(fields[i], "RETURN") {
		i++
		if i < len(fields) {
			i++ // skip return item, e.g. "n"
		}
	}

	if i < len(fields) && strings.EqualFold(fields[i], "LIMIT") {
		i++
		if i < len(fields) {
			lim, err := resolveInt(fields[i], params)
			if err != nil {
				return q, err
			}
			q.Limit = lim
			i++
		}
	}

	return q, nil
}

func tokenize(text string) []string {
	replacer := strings.NewReplacer("(", " ( ", ")", " ) ", ",", " , ")
	return strings.Fields(replacer.Replace(text))
}

// parsePattern accepts "(n:TYPE)" or "(n)" and returns TYPE (empty if
// untyped).
func parsePattern(pattern string) (string, error) {
	pattern = strings.TrimPrefix(pattern, "(")
	pattern = strings.TrimSuffix(pattern, ")")
	parts := strings.SplitN(pattern, ":", 2)
	if len(parts) == 2 {
		return strings.ToLower(parts[1]), nil
	}
	return "", nil
}

func parseCondition(tokens []string, params map[string]any) (Condition, int, error) {
	if len(tokens) < 3 {
		return Condition{}, 0, memerr.Wrap(memerr.KindInvalidInput, "graphstore.ParseQuery",
			fmt.Errorf("truncated WHERE condition: %w", memerr.ErrInvalidInput))
	}
	fieldToken := tokens[0]
	field := fieldToken
	if idx := strings.Index(fieldToken, "."); idx >= 0 {
		field = fieldToken[idx+1:]
	}
	op := tokens[1]
	valueToken := tokens[2]
	value, err := resolveValue(valueToken, params)
	if err != nil {
		return Condition{}, 0, err
	}
	return Condition{Field: field, Op: op, Value: value}, 3, nil
}

func resolveValue(token string, params map[string]any) (any, error) {
	if strings.HasPrefix(token, "$") {
		name := strings.TrimPrefix(token, "$")
		val, ok := params[name]
		if !ok {
			return nil, memerr.Wrap(memerr.KindInvalidInput, "graphstore.ParseQuery",
				fmt.Errorf("unbound parameter %q: %w", token, memerr.ErrInvalidInput))
		}
		return val, nil
	}
	if n, err := strconv.ParseFloat(token, 64); err == nil {
		return n, nil
	}
	return strings.Trim(token, `"'`), nil
}

func resolveInt(token string, params map[string]any) (int, error) {
	v, err := resolveValue(token, params)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return int(x), nil
	case int:
		return x, nil
	default:
		return 0, memerr.Wrap(memerr.KindInvalidInput, "graphstore.ParseQuery",
			fmt.Errorf("LIMIT value %v is not numeric: %w", v, memerr.ErrInvalidInput))
	}
}
