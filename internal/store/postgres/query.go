package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// selectQuery is the generic rows-and-filters shape the stores are written
// against: equality filters, a single ordering column and an optional limit.
type selectQuery struct {
	table   string
	columns []string
	filters []eqFilter
	orderBy string
	desc    bool
	limit   int
}

type eqFilter struct {
	column string
	value  any
}

func from(table string, columns ...string) *selectQuery {
	return &selectQuery{table: table, columns: columns}
}

func (q *selectQuery) eq(column string, value any) *selectQuery {
	q.filters = append(q.filters, eqFilter{column: column, value: value})
	return q
}

func (q *selectQuery) order(column string, desc bool) *selectQuery {
	q.orderBy = column
	q.desc = desc
	return q
}

func (q *selectQuery) limitTo(n int) *selectQuery {
	q.limit = n
	return q
}

// build renders the query with sanitized identifiers and positional arguments.
func (q *selectQuery) build() (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(q.filters)+1)

	cols := make([]string, len(q.columns))
	for i, c := range q.columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(pgx.Identifier{q.table}.Sanitize())

	for i, f := range q.filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, f.value)
		fmt.Fprintf(&sb, "%s = $%d", pgx.Identifier{f.column}.Sanitize(), len(args))
	}

	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(pgx.Identifier{q.orderBy}.Sanitize())
		if q.desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}

	if q.limit > 0 {
		args = append(args, q.limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}
