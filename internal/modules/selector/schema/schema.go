// Package schema stores selector field schemas and target collection
// metadata, and resolves them into engine configuration.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mx-space/dualpanel/internal/models"
	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"github.com/mx-space/dualpanel/internal/pkg/pagination"
	"github.com/mx-space/dualpanel/internal/pkg/response"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFieldNotFound = errors.New("selector field not found")
	ErrInvalidField  = errors.New("invalid selector field")
)

// Field is a stored selector field schema.
type Field struct {
	Name        string             `json:"name"`
	Collection  string             `json:"collection"`
	Association filter.Association `json:"association"`
	Required    bool               `json:"required"`
	Props       map[string]any     `json:"props"`
}

// Config resolves the component props once.
func (f *Field) Config() (engine.Config, error) {
	return engine.ResolveConfig(f.Props)
}

// Service reads and writes schemas with a read-through cache.
type Service struct {
	db *gorm.DB

	mu          sync.RWMutex
	fields      map[string]*Field
	collections map[string][]filter.FieldMeta
}

func NewService(db *gorm.DB) *Service {
	return &Service{
		db:          db,
		fields:      map[string]*Field{},
		collections: map[string][]filter.FieldMeta{},
	}
}

// Field returns the schema of a field.
func (s *Service) Field(ctx context.Context, name string) (*Field, error) {
	s.mu.RLock()
	if f, ok := s.fields[name]; ok {
		defer s.mu.RUnlock()
		return f, nil
	}
	s.mu.RUnlock()

	var row models.SelectorFieldModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFieldNotFound
	}
	if err != nil {
		return nil, err
	}
	f, err := fieldFromModel(&row)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.fields[name] = f
	s.mu.Unlock()
	return f, nil
}

// ListFields returns one page of field schemas ordered by name.
func (s *Service) ListFields(ctx context.Context, q pagination.Query) ([]*Field, response.Pagination, error) {
	var rows []models.SelectorFieldModel
	page, err := pagination.Paginate(s.db.WithContext(ctx).Model(&models.SelectorFieldModel{}).Order("name"), q, &rows)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	fields := make([]*Field, 0, len(rows))
	for i := range rows {
		f, err := fieldFromModel(&rows[i])
		if err != nil {
			return nil, response.Pagination{}, err
		}
		fields = append(fields, f)
	}
	return fields, page, nil
}

// SaveField creates or replaces a field schema. Props must resolve into a
// configuration.
func (s *Service) SaveField(ctx context.Context, f Field) (*Field, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidField)
	}
	if _, err := f.Config(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	props, err := json.Marshal(f.Props)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}

	row := models.SelectorFieldModel{
		Name:       f.Name,
		Collection: f.Collection,
		Target:     f.Association.Target,
		TargetKey:  f.Association.TargetKey,
		ForeignKey: f.Association.ForeignKey,
		SourceKey:  f.Association.SourceKey,
		Interface:  f.Association.Interface,
		Required:   f.Required,
		Props:      datatypes.JSON(props),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"collection", "target", "target_key", "foreign_key", "source_key",
			"interface", "required", "props", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	saved := f
	s.mu.Lock()
	s.fields[f.Name] = &saved
	s.mu.Unlock()
	return &saved, nil
}

// CollectionFields returns the field metadata of a collection. A collection
// without stored metadata yields nil, which makes keyword search fall back to
// the label field.
func (s *Service) CollectionFields(ctx context.Context, name string) ([]filter.FieldMeta, error) {
	s.mu.RLock()
	if fields, ok := s.collections[name]; ok {
		defer s.mu.RUnlock()
		return fields, nil
	}
	s.mu.RUnlock()

	var row models.SelectorCollectionModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	var fields []filter.FieldMeta
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, err
	default:
		fields = []filter.FieldMeta{}
		if len(row.Fields) > 0 {
			if err := json.Unmarshal(row.Fields, &fields); err != nil {
				return nil, fmt.Errorf("decode fields of %s: %w", name, err)
			}
		}
	}

	s.mu.Lock()
	s.collections[name] = fields
	s.mu.Unlock()
	return fields, nil
}

// SaveCollection creates or replaces the field metadata of a collection.
func (s *Service) SaveCollection(ctx context.Context, name string, fields []filter.FieldMeta) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidField)
	}
	if fields == nil {
		fields = []filter.FieldMeta{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	row := models.SelectorCollectionModel{Name: name, Fields: datatypes.JSON(data)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.collections[name] = fields
	s.mu.Unlock()
	return nil
}

func fieldFromModel(m *models.SelectorFieldModel) (*Field, error) {
	f := &Field{
		Name:       m.Name,
		Collection: m.Collection,
		Association: filter.Association{
			Target:     m.Target,
			TargetKey:  m.TargetKey,
			ForeignKey: m.ForeignKey,
			SourceKey:  m.SourceKey,
			Interface:  m.Interface,
		},
		Required: m.Required,
	}
	if len(m.Props) > 0 {
		if err := json.Unmarshal(m.Props, &f.Props); err != nil {
			return nil, fmt.Errorf("decode props of %s: %w", m.Name, err)
		}
	}
	return f, nil
}
