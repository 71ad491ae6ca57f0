package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectQueryBuild(t *testing.T) {
	tests := []struct {
		name     string
		query    *selectQuery
		expected string
		args     []any
	}{
		{
			name:     "plain select",
			query:    from("stock_picks", "stock_pick_id", "stock_name"),
			expected: `SELECT "stock_pick_id", "stock_name" FROM "stock_picks"`,
			args:     []any{},
		},
		{
			name: "filters order and limit",
			query: from("popup_ads", "popup_id").
				eq("is_active", true).
				order("display_order", false).
				limitTo(10),
			expected: `SELECT "popup_id" FROM "popup_ads" WHERE "is_active" = $1 ORDER BY "display_order" ASC LIMIT $2`,
			args:     []any{true, 10},
		},
		{
			name: "multiple filters descending",
			query: from("popup_dismissals", "dismissed_at").
				eq("user_id", "u1").
				eq("popup_id", "p1").
				order("dismissed_at", true),
			expected: `SELECT "dismissed_at" FROM "popup_dismissals" WHERE "user_id" = $1 AND "popup_id" = $2 ORDER BY "dismissed_at" DESC`,
			args:     []any{"u1", "p1"},
		},
		{
			name:     "identifiers are quoted",
			query:    from(`odd"table`, "col"),
			expected: `SELECT "col" FROM "odd""table"`,
			args:     []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.query.build()
			require.Equal(t, tt.expected, sql)
			require.Equal(t, tt.args, args)
		})
	}
}
