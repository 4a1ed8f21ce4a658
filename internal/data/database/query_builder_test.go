package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	cutoff := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		opts     *ListQueryOptions
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all columns",
			opts:    NewListQueryOptions("jobs"),
			wantSQL: `SELECT * FROM "jobs"`,
		},
		{
			name:    "selected and qualified columns",
			opts:    NewListQueryOptions("applications", WithColumns("id", "applications.status")),
			wantSQL: `SELECT "id", "applications"."status" FROM "applications"`,
		},
		{
			name: "count ignores ordering and paging",
			opts: NewListQueryOptions("notifications",
				WithCountOnly(),
				WithCondition(WhereCond("recipient_id", Equal, "u1")),
				WithOrderBy("created_at", "DESC"),
				WithLimit(10),
			),
			wantSQL:  `SELECT COUNT(*) FROM "notifications" WHERE "recipient_id" = $1`,
			wantArgs: []any{"u1"},
		},
		{
			name: "comparison operators",
			opts: NewListQueryOptions("jobs", WithConditions(
				WhereCond("salary_max", GreaterThanOrEqual, 500),
				WhereCond("expires_at", GreaterThan, cutoff),
				WhereCond("location_city", ILike, "pune"),
			)),
			wantSQL:  `SELECT * FROM "jobs" WHERE "salary_max" >= $1 AND "expires_at" > $2 AND "location_city" ILIKE $3`,
			wantArgs: []any{500, cutoff, "pune"},
		},
		{
			name:     "text match binds one escaped pattern",
			opts:     NewListQueryOptions("jobs", WithCondition(WhereTextMatch(" 50%_off ", "title", "description"))),
			wantSQL:  `SELECT * FROM "jobs" WHERE ("title" ILIKE $1 OR "description" ILIKE $1)`,
			wantArgs: []any{`%50\%\_off%`},
		},
		{
			name:    "text match without fields is dropped",
			opts:    NewListQueryOptions("jobs", WithCondition(WhereTextMatch("mason"))),
			wantSQL: `SELECT * FROM "jobs"`,
		},
		{
			name: "raw fragment is renumbered after earlier params",
			opts: NewListQueryOptions("notifications", WithConditions(
				WhereCond("recipient_id", Equal, "u1"),
				WhereRawCond("(expires_at IS NULL OR expires_at > $1)", cutoff),
			)),
			wantSQL:  `SELECT * FROM "notifications" WHERE "recipient_id" = $1 AND (expires_at IS NULL OR expires_at > $2)`,
			wantArgs: []any{"u1", cutoff},
		},
		{
			name: "repeated placeholder binds once",
			opts: NewListQueryOptions("jobs", WithConditions(
				WhereCond("is_active", Equal, true),
				WhereRawCond("(salary_min <= $1 AND salary_max >= $1)", 800),
			)),
			wantSQL:  `SELECT * FROM "jobs" WHERE "is_active" = $1 AND (salary_min <= $2 AND salary_max >= $2)`,
			wantArgs: []any{true, 800},
		},
		{
			name: "multi digit placeholders",
			opts: NewListQueryOptions("jobs", WithCondition(
				WhereRawCond("id IN ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10),
			)),
			wantSQL:  `SELECT * FROM "jobs" WHERE id IN ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			wantArgs: []any{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		{
			name:    "raw fragment without params is kept",
			opts:    NewListQueryOptions("jobs", WithCondition(WhereRawCond("current_applicants < max_applicants"))),
			wantSQL: `SELECT * FROM "jobs" WHERE current_applicants < max_applicants`,
		},
		{
			name:    "invalid order direction is dropped",
			opts:    NewListQueryOptions("jobs", WithOrderBy("posted_at", "sideways")),
			wantSQL: `SELECT * FROM "jobs" ORDER BY "posted_at"`,
		},
		{
			name:     "zero limit and offset are kept",
			opts:     NewListQueryOptions("jobs", WithLimit(0), WithOffset(0), WithOffset(-5)),
			wantSQL:  `SELECT * FROM "jobs" LIMIT $1 OFFSET $2`,
			wantArgs: []any{0, 0},
		},
		{
			name: "job search",
			opts: NewListQueryOptions("jobs",
				WithColumns("id", "title"),
				WithCondition(WhereCond("category", Equal, "construction")),
				WithCondition(WhereTextMatch("mason", "title", "description")),
				WithOrderBy("posted_at", "desc"),
				WithLimit(20),
				WithOffset(40),
			),
			wantSQL: `SELECT "id", "title" FROM "jobs" WHERE "category" = $1 AND ("title" ILIKE $2 OR "description" ILIKE $2)` +
				` ORDER BY "posted_at" DESC LIMIT $3 OFFSET $4`,
			wantArgs: []any{"construction", "%mason%", 20, 40},
		},
		{
			name: "identifiers are quoted",
			opts: NewListQueryOptions(`jobs"; DROP TABLE users; --`,
				WithCondition(WhereCond(`title" OR 1=1 --`, Equal, "x")),
			),
			wantSQL:  `SELECT * FROM "jobs""; DROP TABLE users; --" WHERE "title"" OR 1=1 --" = $1`,
			wantArgs: []any{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := BuildListQuery(tt.opts)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildListQuery_Nil(t *testing.T) {
	sql, args := BuildListQuery(nil)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestWhereCond_RejectsRawTypes(t *testing.T) {
	assert.Panics(t, func() { WhereCond("title", Custom, "x") })
	assert.Panics(t, func() { WhereCond("title", TextMatch, "x") })
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%%", ContainsPattern("  "))
	assert.Equal(t, `%a\\b%`, ContainsPattern(`a\b`))
	assert.Equal(t, "%plumber%", ContainsPattern("plumber"))
}
