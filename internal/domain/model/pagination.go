//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	// MaxPage keeps (Page-1)*Limit far from int overflow.
	MaxPage = 100_000
)

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps page and limit into their allowed ranges.
func (p Page) Normalize() Page {
	p.Page = min(max(p.Page, 1), MaxPage)
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// PageResult is one page of items with the unpaged total.
type PageResult[T any] struct {
	Items []T
	Total int
	Page  Page
}

// HasNext reports whether another page follows.
func (r PageResult[T]) HasNext() bool {
	return r.Page.Page*r.Page.Limit < r.Total
}

// HasPrev reports whether a previous page exists.
func (r PageResult[T]) HasPrev() bool {
	return r.Page.Page > 1
}
