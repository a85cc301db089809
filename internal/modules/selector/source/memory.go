package source

import (
	"context"
	"sync"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
)

// MemorySource serves records held in process. It backs demos and tests.
type MemorySource struct {
	mu          sync.RWMutex
	collections map[string][]engine.Record
	maxSize     int
}

func NewMemorySource(maxSize int) *MemorySource {
	return &MemorySource{collections: map[string][]engine.Record{}, maxSize: maxSize}
}

// Put replaces the records of a collection.
func (s *MemorySource) Put(collection string, records []engine.Record) {
	snapshot := make([]engine.Record, 0, len(records))
	for _, r := range records {
		snapshot = append(snapshot, r.Clone())
	}
	s.mu.Lock()
	s.collections[collection] = snapshot
	s.mu.Unlock()
}

func (s *MemorySource) List(ctx context.Context, q Query) ([]engine.Record, error) {
	q, err := q.normalize(s.maxSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	skip := q.offset()
	out := make([]engine.Record, 0)
	for _, r := range s.collections[q.Collection] {
		if !q.Filter.Match(r) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, r.Clone())
		if len(out) == q.PageSize {
			break
		}
	}
	return out, nil
}
