package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mx-space/dualpanel/internal/models"
	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/pkg/redis"
	"github.com/puzpuzpuz/xsync/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetainStore keeps the selection of a cancelled session so the next open of
// the same field binding starts from it.
type RetainStore interface {
	Load(ctx context.Context, binding string) (engine.State, bool, error)
	Save(ctx context.Context, binding string, st engine.State, ttl time.Duration) error
	Delete(ctx context.Context, binding string) error
}

const retainPrefix = "selector:retain:"

// RedisStore keeps retained selections in Redis as JSON with a TTL.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context, binding string) (engine.State, bool, error) {
	data, err := s.client.Get(ctx, retainPrefix+binding)
	if err != nil {
		return engine.State{}, false, err
	}
	if data == nil {
		return engine.State{}, false, nil
	}
	st := engine.NewState()
	if err := json.Unmarshal(data, &st); err != nil {
		return engine.State{}, false, fmt.Errorf("decode retained selection: %w", err)
	}
	return st, true, nil
}

func (s *RedisStore) Save(ctx context.Context, binding string, st engine.State, ttl time.Duration) error {
	data, err := json.Marshal(retained(st))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, retainPrefix+binding, data, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, binding string) error {
	return s.client.Del(ctx, retainPrefix+binding)
}

// MemoryStore keeps retained selections in process.
type MemoryStore struct {
	entries *xsync.MapOf[string, memoryEntry]
	now     func() time.Time
}

type memoryEntry struct {
	state   engine.State
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: xsync.NewMapOf[string, memoryEntry](), now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, binding string) (engine.State, bool, error) {
	e, ok := s.entries.Load(binding)
	if !ok {
		return engine.State{}, false, nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.entries.Delete(binding)
		return engine.State{}, false, nil
	}
	return e.state.Clone(), true, nil
}

func (s *MemoryStore) Save(_ context.Context, binding string, st engine.State, ttl time.Duration) error {
	e := memoryEntry{state: retained(st)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.entries.Store(binding, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, binding string) error {
	s.entries.Delete(binding)
	return nil
}

// Purge drops expired entries and reports how many were removed.
func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	now := s.now()
	n := 0
	s.entries.Range(func(binding string, e memoryEntry) bool {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			s.entries.Delete(binding)
			n++
		}
		return true
	})
	return n, nil
}

// OptionStore keeps retained selections in the options table. Rows carry
// their expiry next to the keys since the table has no TTL.
type OptionStore struct {
	db  *gorm.DB
	now func() time.Time
}

type optionPayload struct {
	State   engine.State `json:"state"`
	Expires *time.Time   `json:"expires,omitempty"`
}

func NewOptionStore(db *gorm.DB) *OptionStore {
	return &OptionStore{db: db, now: time.Now}
}

func (s *OptionStore) Load(ctx context.Context, binding string) (engine.State, bool, error) {
	var opt models.OptionModel
	err := s.db.WithContext(ctx).Where("name = ?", retainPrefix+binding).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, false, nil
	}
	if err != nil {
		return engine.State{}, false, err
	}
	payload := optionPayload{State: engine.NewState()}
	if err := json.Unmarshal([]byte(opt.Value), &payload); err != nil {
		return engine.State{}, false, fmt.Errorf("decode retained selection: %w", err)
	}
	if payload.Expires != nil && !s.now().Before(*payload.Expires) {
		return engine.State{}, false, s.Delete(ctx, binding)
	}
	return payload.State, true, nil
}

func (s *OptionStore) Save(ctx context.Context, binding string, st engine.State, ttl time.Duration) error {
	payload := optionPayload{State: retained(st)}
	if ttl > 0 {
		expires := s.now().Add(ttl)
		payload.Expires = &expires
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	opt := models.OptionModel{Name: retainPrefix + binding, Value: string(data)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&opt).Error
}

func (s *OptionStore) Delete(ctx context.Context, binding string) error {
	return s.db.WithContext(ctx).Where("name = ?", retainPrefix+binding).Delete(&models.OptionModel{}).Error
}

// Purge deletes expired or undecodable retained selections and reports how
// many rows were removed.
func (s *OptionStore) Purge(ctx context.Context) (int, error) {
	var rows []models.OptionModel
	if err := s.db.WithContext(ctx).Where("name LIKE ?", retainPrefix+"%").Find(&rows).Error; err != nil {
		return 0, err
	}
	now := s.now()
	var stale []uint
	for _, row := range rows {
		var payload optionPayload
		if err := json.Unmarshal([]byte(row.Value), &payload); err != nil ||
			(payload.Expires != nil && !now.Before(*payload.Expires)) {
			stale = append(stale, row.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Delete(&models.OptionModel{}, stale).Error; err != nil {
		return 0, err
	}
	return len(stale), nil
}

// retained drops the active key; it never survives a close.
func retained(st engine.State) engine.State {
	out := st.Clone()
	out.Active = nil
	return out
}
