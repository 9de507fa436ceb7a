package docstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEqual         Op = "=="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field satisfies Op Value.
// Documents missing the field never match.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts query results by a field.
type Order struct {
	Field      string
	Descending bool
}

// Query selects documents directly inside one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter{}, q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Ordered returns a copy of q with an extra sort key.
func (q Query) Ordered(field string, descending bool) Query {
	q.OrderBy = append(append([]Order{}, q.OrderBy...), Order{Field: field, Descending: descending})
	return q
}

// Run applies q's filters, ordering and limit to docs. Backends that
// cannot evaluate queries natively load the collection and call Run.
// Ties keep document path order.
func Run(q Query, docs []*Document) ([]*Document, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter on %s: %w", f.Field, err)
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		ok, err := matches(d.Data, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.OrderBy {
			a, _ := getField(out[i].Data, o.Field)
			b, _ := getField(out[j].Data, o.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return out[i].Path < out[j].Path
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(data map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		v, exists := getField(data, f.Field)
		if !exists {
			return false, nil
		}
		var ok bool
		switch f.Op {
		case OpEqual:
			ok = compareValues(v, f.Value) == 0
		case OpLess:
			ok = compareValues(v, f.Value) < 0
		case OpLessEqual:
			ok = compareValues(v, f.Value) <= 0
		case OpGreater:
			ok = compareValues(v, f.Value) > 0
		case OpGreaterEqual:
			ok = compareValues(v, f.Value) >= 0
		case OpArrayContains:
			arr, isArr := v.([]any)
			ok = isArr && indexOf(arr, f.Value) >= 0
		default:
			return false, fmt.Errorf("unsupported operator %q", f.Op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// typeRank orders values of different types: null, bool, number, string.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// compareValues compares two normalized values. Strings that both parse
// as RFC 3339 timestamps compare chronologically.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		if ta, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if tb, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return ta.Compare(tb)
			}
		}
		return strings.Compare(av, bv)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
