// Package source fetches candidate records for the selector panels.
package source

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
)

// DefaultPageSize bounds a single fetch.
const DefaultPageSize = 1000

var (
	ErrNoCollection      = errors.New("target collection is not configured")
	ErrInvalidCollection = errors.New("invalid collection name")

	collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
)

// Query selects one page of a collection.
type Query struct {
	Collection string
	Filter     filter.Expr
	Page       int
	PageSize   int
	// OrderBy is the column SQL pages are ordered by. Empty means id.
	OrderBy string
}

// Source returns records matching a query.
type Source interface {
	List(ctx context.Context, q Query) ([]engine.Record, error)
}

// normalize validates the collection and clamps paging to [1, maxSize].
func (q Query) normalize(maxSize int) (Query, error) {
	if q.Collection == "" {
		return q, ErrNoCollection
	}
	if !collectionPattern.MatchString(q.Collection) {
		return q, fmt.Errorf("%w: %q", ErrInvalidCollection, q.Collection)
	}
	if maxSize <= 0 {
		maxSize = DefaultPageSize
	}
	if q.OrderBy == "" {
		q.OrderBy = "id"
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > maxSize {
		q.PageSize = maxSize
	}
	return q, nil
}

func (q Query) offset() int { return (q.Page - 1) * q.PageSize }
