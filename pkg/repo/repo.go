// Package repo defines a generic read-mostly repository over property-graph
// nodes, used for graph-backed reference data such as terminology.
package repo

import "context"

// Repository lists and upserts entities keyed by ID.
type Repository[T any, ID comparable] interface {
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Upsert(ctx context.Context, entity T) (T, error)
}

// ListOpts controls pagination and filtering for List operations.
// Filter keys are node properties matched by equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}

// DefaultPageSize is the page size used when ListOpts.Limit is not set.
const DefaultPageSize = 100

// ListAll pages through List until a short page is returned.
func ListAll[T any, ID comparable](ctx context.Context, r Repository[T, ID], filter map[string]any, pageSize int) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var all []T
	for offset := 0; ; offset += pageSize {
		page, err := r.List(ctx, ListOpts{Offset: offset, Limit: pageSize, Filter: filter})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
