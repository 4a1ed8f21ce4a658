// Package database builds the parameterized list and count queries used by the
// marketplace repositories. Identifiers are quoted with pgx; values are always
// passed as positional arguments.
package database

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is the comparison applied by a Condition.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	ILike              ConditionType = "ILIKE"
	// TextMatch matches a term as a case-insensitive substring of any of several columns.
	TextMatch ConditionType = "TEXT_MATCH"
	Custom    ConditionType = "CUSTOM"

	unset = -1
)

var placeholderRE = regexp.MustCompile(`\$(\d+)`)

// Condition is one AND-ed term of a WHERE clause.
type Condition struct {
	Field  string
	Type   ConditionType
	Value  any
	fields []string
	raw    string
}

// WhereCond compares a single column against value.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom || condType == TextMatch {
		//nolint:forbidigo // misuse is a programming error
		panic("use WhereRawCond or WhereTextMatch for " + string(condType))
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond embeds a SQL fragment. Its $1..$n placeholders refer to params
// and are renumbered to fit the surrounding query.
func WhereRawCond(rawQuery string, params ...any) Condition {
	return Condition{Type: Custom, raw: rawQuery, Value: params}
}

// WhereTextMatch matches term as a substring of any of fields. LIKE wildcards
// in term are escaped, so "50%" matches the literal text.
func WhereTextMatch(term string, fields ...string) Condition {
	return Condition{Type: TextMatch, Value: ContainsPattern(term), fields: fields}
}

// ContainsPattern builds an ILIKE substring pattern with wildcards in q escaped.
func ContainsPattern(q string) string {
	q = strings.TrimSpace(q)
	q = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(q)
	return "%" + q + "%"
}

// ListQueryOptions describes a SELECT over one table.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    string
	OrderDir   string
	Limit      int
	Offset     int
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions applies opts over defaults (all columns, no paging).
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{Table: table, Limit: unset, Offset: unset}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithConditions replaces the condition list.
func WithConditions(conds ...Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = conds }
}

// WithOrderBy sets the ordering column and direction (ASC or DESC; anything else is dropped).
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = column
		o.OrderDir = direction
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly turns the query into SELECT COUNT(*); ordering and paging are ignored.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// BuildListQuery renders options into SQL and its positional arguments.
//
//	q, args := BuildListQuery(NewListQueryOptions("jobs",
//		WithColumns("id", "title"),
//		WithCondition(WhereCond("category", Equal, "construction")),
//		WithCondition(WhereTextMatch("mason", "title", "description")),
//		WithOrderBy("posted_at", "DESC"),
//		WithLimit(20),
//	))
//	// SELECT "id", "title" FROM "jobs" WHERE "category" = $1
//	//   AND ("title" ILIKE $2 OR "description" ILIKE $2) ORDER BY "posted_at" DESC LIMIT $3
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}
	b := &queryBuilder{next: 1}

	switch {
	case options.CountOnly:
		b.sql.WriteString("SELECT COUNT(*)")
	case len(options.Columns) == 0:
		b.sql.WriteString("SELECT *")
	default:
		cols := make([]string, len(options.Columns))
		for i, c := range options.Columns {
			cols[i] = quoteQualified(c)
		}
		b.sql.WriteString("SELECT ")
		b.sql.WriteString(strings.Join(cols, ", "))
	}
	b.sql.WriteString(" FROM ")
	b.sql.WriteString(pgx.Identifier{options.Table}.Sanitize())

	b.where(options.Conditions)
	if options.CountOnly {
		return b.sql.String(), b.args
	}

	if options.OrderBy != "" {
		b.sql.WriteString(" ORDER BY ")
		b.sql.WriteString(quoteQualified(options.OrderBy))
		if dir := strings.ToUpper(options.OrderDir); dir == "ASC" || dir == "DESC" {
			b.sql.WriteString(" " + dir)
		}
	}
	if options.Limit != unset {
		b.sql.WriteString(" LIMIT " + b.bind(options.Limit))
	}
	if options.Offset != unset {
		b.sql.WriteString(" OFFSET " + b.bind(options.Offset))
	}
	return b.sql.String(), b.args
}

type queryBuilder struct {
	sql  strings.Builder
	args []any
	next int
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	p := "$" + strconv.Itoa(b.next)
	b.next++
	return p
}

func (b *queryBuilder) where(conds []Condition) {
	terms := make([]string, 0, len(conds))
	for _, c := range conds {
		if term := b.condition(c); term != "" {
			terms = append(terms, term)
		}
	}
	if len(terms) > 0 {
		b.sql.WriteString(" WHERE ")
		b.sql.WriteString(strings.Join(terms, " AND "))
	}
}

func (b *queryBuilder) condition(c Condition) string {
	switch c.Type {
	case Custom:
		return b.raw(c)
	case TextMatch:
		if len(c.fields) == 0 {
			return ""
		}
		p := b.bind(c.Value)
		ors := make([]string, len(c.fields))
		for i, f := range c.fields {
			ors[i] = fmt.Sprintf("%s ILIKE %s", pgx.Identifier{f}.Sanitize(), p)
		}
		return "(" + strings.Join(ors, " OR ") + ")"
	case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual, ILike:
		if c.Field == "" {
			return ""
		}
		return fmt.Sprintf("%s %s %s", pgx.Identifier{c.Field}.Sanitize(), c.Type, b.bind(c.Value))
	}
	return ""
}

// raw renumbers the fragment's placeholders. A placeholder used twice binds
// once; placeholders without a matching param are left untouched.
func (b *queryBuilder) raw(c Condition) string {
	if c.raw == "" {
		return ""
	}
	params, _ := c.Value.([]any)
	if len(params) == 0 {
		return c.raw
	}
	mapped := make(map[int]string, len(params))
	return placeholderRE.ReplaceAllStringFunc(c.raw, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		if p, ok := mapped[n]; ok {
			return p
		}
		mapped[n] = b.bind(params[n-1])
		return mapped[n]
	})
}

func quoteQualified(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}
