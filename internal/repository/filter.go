package repository

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// psql is the shared statement builder with PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Filter is the uniform query filter: keys are either a bare field name
// (equality) or "field__op" with op in {in, notin, lt, lte, gt, gte,
// icontains, isnull}.
type Filter map[string]interface{}

// Page bounds a list query.
type Page struct {
	Skip  int
	Limit int
}

// Sort orders a list query by a single field.
type Sort struct {
	Field string
	Desc  bool
}

// Apply translates the filter onto a select builder. allowed maps exposed
// field names to column names; a key referencing an unknown field is an
// error so callers cannot probe arbitrary columns.
func (f Filter) Apply(b sq.SelectBuilder, allowed map[string]string) (sq.SelectBuilder, error) {
	for key, value := range f {
		field, op := key, "eq"
		if i := strings.Index(key, "__"); i >= 0 {
			field, op = key[:i], key[i+2:]
		}
		col, ok := allowed[field]
		if !ok {
			return b, fmt.Errorf("unknown filter field: %s", field)
		}

		switch op {
		case "eq":
			b = b.Where(sq.Eq{col: value})
		case "in":
			b = b.Where(sq.Eq{col: value})
		case "notin":
			b = b.Where(sq.NotEq{col: value})
		case "lt":
			b = b.Where(sq.Lt{col: value})
		case "lte":
			b = b.Where(sq.LtOrEq{col: value})
		case "gt":
			b = b.Where(sq.Gt{col: value})
		case "gte":
			b = b.Where(sq.GtOrEq{col: value})
		case "icontains":
			b = b.Where(sq.ILike{col: fmt.Sprintf("%%%v%%", value)})
		case "isnull":
			if isNull, _ := value.(bool); isNull {
				b = b.Where(sq.Eq{col: nil})
			} else {
				b = b.Where(sq.NotEq{col: nil})
			}
		default:
			return b, fmt.Errorf("unknown filter operator: %s", op)
		}
	}
	return b, nil
}

// ApplyPage adds OFFSET/LIMIT. Limit is clamped to [1, 500], default 50.
func (p Page) ApplyPage(b sq.SelectBuilder) sq.SelectBuilder {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	b = b.Limit(uint64(limit))
	if p.Skip > 0 {
		b = b.Offset(uint64(p.Skip))
	}
	return b
}

// ApplySort adds ORDER BY for a whitelisted field; unknown fields error.
func (s Sort) ApplySort(b sq.SelectBuilder, allowed map[string]string) (sq.SelectBuilder, error) {
	if s.Field == "" {
		return b, nil
	}
	col, ok := allowed[s.Field]
	if !ok {
		return b, fmt.Errorf("unknown sort field: %s", s.Field)
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return b.OrderBy(col + " " + dir), nil
}
