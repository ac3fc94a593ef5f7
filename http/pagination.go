package http

import "context"

// PageFetcher fetches one page of items. next is the number of the page
// that follows, or 0 when page is the last one (the convention used by
// go-github's Response.NextPage).
type PageFetcher[T any] func(ctx context.Context, page int) (items []T, next int, err error)

// PageIterator provides lazy iteration over paginated API results.
type PageIterator[T any] struct {
	fetch   PageFetcher[T]
	page    int
	buffer  []T
	done    bool
	err     error
	pages   int
	fetched int
}

// NewPageIterator creates a new iterator with the given fetch function.
// The first call to fetch receives page 0, meaning "the default first page".
func NewPageIterator[T any](fetch PageFetcher[T]) *PageIterator[T] {
	return &PageIterator[T]{fetch: fetch}
}

// Next returns the next item from the iterator.
// When iteration is complete, returns (zero, false, nil).
func (p *PageIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	if p.err != nil {
		return zero, false, p.err
	}

	// Skip over empty pages that still report a successor.
	for len(p.buffer) == 0 && !p.done {
		items, next, err := p.fetch(ctx, p.page)
		if err != nil {
			p.err = err
			return zero, false, err
		}
		p.pages++
		p.buffer = items
		p.done = next == 0 || next == p.page
		p.page = next
	}

	if len(p.buffer) == 0 {
		return zero, false, nil
	}

	item := p.buffer[0]
	p.buffer = p.buffer[1:]
	p.fetched++

	return item, true, nil
}

// Find returns the first item for which match reports true, fetching
// further pages only as needed.
func (p *PageIterator[T]) Find(ctx context.Context, match func(T) bool) (T, bool, error) {
	for {
		item, ok, err := p.Next(ctx)
		if err != nil || !ok {
			return item, false, err
		}
		if match(item) {
			return item, true, nil
		}
	}
}

// Last consumes every page and returns the final item.
func (p *PageIterator[T]) Last(ctx context.Context) (T, bool, error) {
	var last T
	found := false
	for {
		item, ok, err := p.Next(ctx)
		if err != nil {
			return last, false, err
		}
		if !ok {
			return last, found, nil
		}
		last, found = item, true
	}
}

// ForEach calls fn for each item in the iterator.
// If fn returns an error, iteration stops and that error is returned.
func (p *PageIterator[T]) ForEach(ctx context.Context, fn func(T) error) error {
	for {
		item, ok, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

// Pages returns the number of pages fetched so far.
func (p *PageIterator[T]) Pages() int {
	return p.pages
}

// Fetched returns the number of items returned so far.
func (p *PageIterator[T]) Fetched() int {
	return p.fetched
}
