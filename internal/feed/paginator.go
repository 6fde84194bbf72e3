// Package feed assembles paginated post feeds.
package feed

import (
	"errors"
	"strconv"
	"strings"
)

// DefaultPerPage is the number of posts on one feed page.
const DefaultPerPage = 10

// Window locates one page inside a collection of Count items.
type Window struct {
	Number   int
	NumPages int
	Count    int64
	PerPage  int
}

// Paginate resolves rawPage against count items. A missing or non-numeric
// page yields the first page; a number past either end yields the last page.
// An empty collection has exactly one, empty, page.
func Paginate(count int64, perPage int, rawPage string) Window {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	numPages := 1
	if count > 0 {
		numPages = int((count + int64(perPage) - 1) / int64(perPage))
	}

	number, err := strconv.Atoi(strings.TrimSpace(rawPage))
	switch {
	case errors.Is(err, strconv.ErrRange):
		// An integer too large for int is still past the end.
		number = numPages
	case err != nil:
		number = 1
	case number < 1 || number > numPages:
		number = numPages
	}

	return Window{Number: number, NumPages: numPages, Count: count, PerPage: perPage}
}

// Offset is the index of the first item on the page.
func (w Window) Offset() int {
	return (w.Number - 1) * w.PerPage
}

// Limit is the query limit for the page.
func (w Window) Limit() int {
	return w.PerPage
}

func (w Window) HasNext() bool     { return w.Number < w.NumPages }
func (w Window) HasPrevious() bool { return w.Number > 1 }
func (w Window) HasOtherPages() bool {
	return w.HasNext() || w.HasPrevious()
}

func (w Window) NextNumber() int     { return w.Number + 1 }
func (w Window) PreviousNumber() int { return w.Number - 1 }

// StartIndex is the 1-based position of the first item, or 0 for an empty page.
func (w Window) StartIndex() int {
	if w.Count == 0 {
		return 0
	}
	return w.Offset() + 1
}

// PageRange lists every page number, for rendering pagination links.
func (w Window) PageRange() []int {
	out := make([]int, w.NumPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Page is one window of items.
type Page[T any] struct {
	Window
	Items []T
}
