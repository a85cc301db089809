package source

import (
	"context"
	"fmt"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLSource reads records from arbitrary tables of the application database.
type SQLSource struct {
	db      *gorm.DB
	maxSize int
}

func NewSQLSource(db *gorm.DB, maxSize int) *SQLSource {
	return &SQLSource{db: db, maxSize: maxSize}
}

func (s *SQLSource) List(ctx context.Context, q Query) ([]engine.Record, error) {
	q, err := q.normalize(s.maxSize)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := s.query(s.db.WithContext(ctx), q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Collection, err)
	}
	out := make([]engine.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, sqlRecord(row))
	}
	return out, nil
}

func (s *SQLSource) query(tx *gorm.DB, q Query) *gorm.DB {
	return tx.Table(q.Collection).
		Scopes(filter.Scope(q.Filter)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}}).
		Offset(q.offset()).
		Limit(q.PageSize)
}

// sqlRecord turns raw column bytes into strings so text fields compare as
// strings.
func sqlRecord(row map[string]any) engine.Record {
	rec := make(engine.Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
			continue
		}
		rec[k] = v
	}
	return rec
}
