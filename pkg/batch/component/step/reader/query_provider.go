package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// Order is the direction of a SortKey.
type Order int

const (
	// Ascending sorts low to high.
	Ascending Order = iota
	// Descending sorts high to low.
	Descending
)

func (o Order) keyword() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// comparator is the keyset operator that selects rows after the last-seen key.
func (o Order) comparator() string {
	if o == Descending {
		return "<"
	}
	return ">"
}

// SortKey is one column of the ordering used to page through a source.
type SortKey struct {
	Column string
	Order  Order
}

// PlaceholderStyle selects the bind parameter syntax of the target database.
type PlaceholderStyle int

const (
	// QuestionPlaceholder renders "?" (MySQL, SQLite).
	QuestionPlaceholder PlaceholderStyle = iota
	// DollarPlaceholder renders "$1", "$2", ... (PostgreSQL).
	DollarPlaceholder
)

// QueryProvider builds the statements a paging reader issues.
//
// The sort key set must give a total order over the source, otherwise rows that
// tie on the full key may be skipped or read twice across page boundaries.
// Both statements are rendered once at construction and never change.
type QueryProvider struct {
	selectClause string
	fromClause   string
	whereClause  string
	sortKeys     []SortKey
	placeholder  PlaceholderStyle

	firstPageQuery      string
	remainingPagesQuery string
}

// QueryProviderOption configures a QueryProvider.
type QueryProviderOption func(*QueryProvider)

// WithWhereClause adds a static filter that is combined with the keyset predicate.
func WithWhereClause(where string) QueryProviderOption {
	return func(p *QueryProvider) {
		p.whereClause = stripKeyword(where, "WHERE")
	}
}

// WithPlaceholderStyle sets the bind parameter syntax.
func WithPlaceholderStyle(style PlaceholderStyle) QueryProviderOption {
	return func(p *QueryProvider) {
		p.placeholder = style
	}
}

// NewQueryProvider validates the clauses and renders both paging statements.
// selectClause and fromClause may include their leading SELECT / FROM keyword.
func NewQueryProvider(selectClause, fromClause string, sortKeys []SortKey, opts ...QueryProviderOption) (*QueryProvider, error) {
	p := &QueryProvider{
		selectClause: stripKeyword(selectClause, "SELECT"),
		fromClause:   stripKeyword(fromClause, "FROM"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.selectClause == "" {
		return nil, exception.NewConfigurationError("reader", "query provider requires a select clause", nil)
	}
	if p.fromClause == "" {
		return nil, exception.NewConfigurationError("reader", "query provider requires a from clause", nil)
	}
	if len(sortKeys) == 0 {
		return nil, exception.NewConfigurationError("reader", "query provider requires at least one sort key", nil)
	}
	seen := make(map[string]struct{}, len(sortKeys))
	for _, k := range sortKeys {
		col := strings.TrimSpace(k.Column)
		if col == "" {
			return nil, exception.NewConfigurationError("reader", "sort key column must not be empty", nil)
		}
		lc := strings.ToLower(col)
		if _, dup := seen[lc]; dup {
			return nil, exception.NewConfigurationError("reader", fmt.Sprintf("sort key column '%s' is listed twice", col), nil)
		}
		seen[lc] = struct{}{}
		p.sortKeys = append(p.sortKeys, SortKey{Column: col, Order: k.Order})
	}

	p.firstPageQuery = p.render(false)
	p.remainingPagesQuery = p.render(true)
	return p, nil
}

// SortKeys returns a copy of the configured sort keys.
func (p *QueryProvider) SortKeys() []SortKey {
	out := make([]SortKey, len(p.sortKeys))
	copy(out, p.sortKeys)
	return out
}

// FirstPageQuery returns the statement for the first page. Its only argument is the page size.
func (p *QueryProvider) FirstPageQuery() string { return p.firstPageQuery }

// RemainingPagesQuery returns the keyset statement used for every page after the first.
func (p *QueryProvider) RemainingPagesQuery() string { return p.remainingPagesQuery }

// FirstPageArgs returns the arguments of FirstPageQuery.
func (p *QueryProvider) FirstPageArgs(pageSize int) []any {
	return []any{pageSize}
}

// RemainingPagesArgs expands the last-seen key tuple into the argument order of
// RemainingPagesQuery. lastKey holds one value per sort key.
func (p *QueryProvider) RemainingPagesArgs(lastKey []any, pageSize int) []any {
	args := make([]any, 0, len(p.sortKeys)*(len(p.sortKeys)+1)/2+1)
	for i := range p.sortKeys {
		args = append(args, lastKey[:i+1]...)
	}
	return append(args, pageSize)
}

func (p *QueryProvider) render(keyset bool) string {
	var b strings.Builder
	n := 0
	next := func() string {
		n++
		if p.placeholder == DollarPlaceholder {
			return "$" + strconv.Itoa(n)
		}
		return "?"
	}

	b.WriteString("SELECT ")
	b.WriteString(p.selectClause)
	b.WriteString(" FROM ")
	b.WriteString(p.fromClause)

	var conds []string
	if p.whereClause != "" {
		conds = append(conds, "("+p.whereClause+")")
	}
	if keyset {
		// (k1 > ?) OR (k1 = ? AND k2 > ?) OR ...
		var disj []string
		for i, k := range p.sortKeys {
			var conj []string
			for _, prev := range p.sortKeys[:i] {
				conj = append(conj, prev.Column+" = "+next())
			}
			conj = append(conj, k.Column+" "+k.Order.comparator()+" "+next())
			disj = append(disj, "("+strings.Join(conj, " AND ")+")")
		}
		conds = append(conds, "("+strings.Join(disj, " OR ")+")")
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	b.WriteString(" ORDER BY ")
	for i, k := range p.sortKeys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.Column + " " + k.Order.keyword())
	}
	b.WriteString(" LIMIT ")
	b.WriteString(next())
	return b.String()
}

func stripKeyword(clause, keyword string) string {
	c := strings.TrimSpace(clause)
	if strings.EqualFold(c, keyword) {
		return ""
	}
	if len(c) > len(keyword) && strings.EqualFold(c[:len(keyword)], keyword) {
		if r := c[len(keyword)]; r == ' ' || r == '\t' || r == '\n' {
			return strings.TrimSpace(c[len(keyword):])
		}
	}
	return c
}
