package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/modules/selector/schema"
	"github.com/mx-space/dualpanel/internal/modules/selector/source"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Schemas provides field schemas and collection metadata.
type Schemas interface {
	Field(ctx context.Context, name string) (*schema.Field, error)
	CollectionFields(ctx context.Context, name string) ([]filter.FieldMeta, error)
}

// Manager owns every open session.
type Manager struct {
	schemas  Schemas
	src      source.Source
	store    RetainStore
	log      *zap.Logger
	opts     Options
	sessions *xsync.MapOf[string, *Session]
}

func NewManager(schemas Schemas, src source.Source, store RetainStore, log *zap.Logger, opts Options) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		schemas:  schemas,
		src:      src,
		store:    store,
		log:      log,
		opts:     opts,
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

// Open starts a session for a field.
func (m *Manager) Open(ctx context.Context, fieldName string, req OpenRequest) (*Session, error) {
	field, err := m.schemas.Field(ctx, fieldName)
	if err != nil {
		return nil, err
	}
	cfg, err := field.Config()
	if err != nil {
		return nil, fmt.Errorf("resolve selector config: %w", err)
	}

	s := newSession(uuid.NewString(), field, cfg, m.src, m.store, m.log, m.opts)
	if err := cfg.Validate(); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				s.diagnostics = append(s.diagnostics, e.Error())
			}
		} else {
			s.diagnostics = append(s.diagnostics, err.Error())
		}
	}
	if target := field.Association.Target; target != "" {
		fields, err := m.schemas.CollectionFields(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("load fields of %s: %w", target, err)
		}
		s.searchFields = fields
	}

	if err := s.open(ctx, req); err != nil {
		return nil, err
	}
	m.sessions.Store(s.id, s)
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Cancel closes a session without committing.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	s, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Cancel(ctx)
}

// Confirm closes a session and returns its committed value.
func (m *Manager) Confirm(ctx context.Context, id string) ([]engine.Record, error) {
	s, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Confirm(ctx)
}

// Len reports the number of open sessions.
func (m *Manager) Len() int { return m.sessions.Size() }

// Sweep cancels sessions idle for longer than the idle TTL, retaining their
// selections like a user cancel would.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	var expired []string
	m.sessions.Range(func(id string, s *Session) bool {
		if now.Sub(s.idleSince()) > m.opts.IdleTTL {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		if err := m.Cancel(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.Warn("expire selector session failed", zap.String("session", id), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		m.log.Info("expired idle selector sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}
