// Package session drives selector sessions: one open selector of one form
// field, fed by user events over HTTP.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/modules/selector/schema"
	"github.com/mx-space/dualpanel/internal/modules/selector/source"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoTarget        = errors.New("selector field has no target collection")
	ErrSessionNotFound = errors.New("selector session not found")
	ErrSessionClosed   = errors.New("selector session is closed")
)

// Options tune every session of a manager.
type Options struct {
	// Debounce is the quiet period before a keyword search is fetched. Zero
	// or less fetches immediately.
	Debounce     time.Duration
	FetchTimeout time.Duration
	PageSize     int
	RetainTTL    time.Duration
	IdleTTL      time.Duration
}

// DefaultOptions mirror the widget's behaviour.
func DefaultOptions() Options {
	return Options{
		Debounce:     300 * time.Millisecond,
		FetchTimeout: 10 * time.Second,
		PageSize:     source.DefaultPageSize,
		RetainTTL:    24 * time.Hour,
		IdleTTL:      30 * time.Minute,
	}
}

// OpenRequest is what the host form hands over when the selector opens.
type OpenRequest struct {
	// Value is the field's current value. HasValue distinguishes an empty
	// value from none at all; only the latter restores retained keys.
	Value    []engine.Record
	HasValue bool
	// Record is the host record, used to scope one-to-many candidates.
	Record map[string]any
	// Filter narrows both panels on top of the association scope.
	Filter filter.Expr
}

// Session serialises the events of one open selector behind its mutex, the
// way a widget's event loop would.
type Session struct {
	id      string
	binding string
	field   *schema.Field
	cfg     engine.Config
	src     source.Source
	store   RetainStore
	log     *zap.Logger
	opts    Options

	searchFields []filter.FieldMeta
	diagnostics  []string

	mu       sync.Mutex
	sel      *engine.Synchronizer
	host     map[string]any
	scope    filter.Expr
	term     string
	seq      uint64
	applied  uint64
	timer    *time.Timer
	lastUsed time.Time
	closed   bool
}

func newSession(id string, field *schema.Field, cfg engine.Config, src source.Source, store RetainStore, log *zap.Logger, opts Options) *Session {
	return &Session{
		id:       id,
		field:    field,
		cfg:      cfg,
		src:      src,
		store:    store,
		log:      log.With(zap.String("session", id), zap.String("field", field.Name)),
		opts:     opts,
		sel:      engine.NewSynchronizer(cfg),
		lastUsed: time.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func bindingOf(field *schema.Field, host map[string]any) string {
	sourceKey := field.Association.SourceKey
	if sourceKey == "" {
		sourceKey = "id"
	}
	if k, ok := engine.KeyOf(host[sourceKey]); ok {
		return field.Name + ":" + string(k)
	}
	return field.Name
}

func (s *Session) open(ctx context.Context, req OpenRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.host = req.Record
	s.scope = req.Filter
	s.binding = bindingOf(s.field, req.Record)

	if s.field.Association.Target == "" {
		s.diagnostics = append(s.diagnostics, ErrNoTarget.Error())
		s.log.Warn("selector opened without target collection")
	} else {
		left, right, err := s.fetch(ctx)
		if err != nil {
			return err
		}
		s.sel.SetLeftRecords(left)
		s.sel.SetRightRecords(right)
	}

	if req.HasValue {
		s.sel.Import(req.Value)
	} else if s.store != nil {
		st, ok, err := s.store.Load(ctx, s.binding)
		if err != nil {
			s.log.Warn("load retained selection failed", zap.Error(err))
		} else if ok {
			s.sel.Restore(st)
		}
	}

	s.log.Debug("selector session opened",
		zap.String("binding", s.binding),
		zap.Int("left", len(s.sel.LeftRecords())),
		zap.Int("right", len(s.sel.RightRecords())),
		zap.Bool("deferred", s.sel.Deferred()),
	)
	return nil
}

func (s *Session) fetch(ctx context.Context) (left, right []engine.Record, err error) {
	ctx, cancel := s.fetchContext(ctx)
	defer cancel()

	leftQuery, rightQuery := s.leftQuery(s.term), s.rightQuery()
	s.log.Debug("fetching panels", zap.Any("leftFilter", leftQuery.Filter), zap.Any("rightFilter", rightQuery.Filter))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		left, err = s.src.List(gctx, leftQuery)
		if err != nil {
			return fmt.Errorf("fetch left panel: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		right, err = s.src.List(gctx, rightQuery)
		if err != nil {
			return fmt.Errorf("fetch right panel: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (s *Session) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.FetchTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) leftQuery(term string) source.Query {
	assoc := s.field.Association
	base := filter.And(
		filter.Search(term, s.searchFields, assoc.LabelField()),
		filter.AssociationScope(assoc, s.host),
		s.scope,
	)
	panel := filter.Eq(s.cfg.Left.TypeField, s.cfg.Left.TypeValue)
	return source.Query{
		Collection: assoc.Target,
		Filter:     filter.Compose(base, panel, s.cfg.Common),
		PageSize:   s.opts.PageSize,
		OrderBy:    s.cfg.Left.IDField,
	}
}

func (s *Session) rightQuery() source.Query {
	assoc := s.field.Association
	base := filter.And(filter.AssociationScope(assoc, s.host), s.scope)
	panel := filter.Eq(s.cfg.Right.TypeField, s.cfg.Right.TypeValue)
	return source.Query{
		Collection: assoc.Target,
		Filter:     filter.Compose(base, panel, s.cfg.Common),
		PageSize:   s.opts.PageSize,
		OrderBy:    s.cfg.Right.IDField,
	}
}

// Search refetches the left panel for a keyword once input has been quiet
// for the debounce period. Only the latest search is ever applied.
func (s *Session) Search(term string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.touch()
	s.term = term
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.field.Association.Target == "" {
		s.applied = seq
		s.mu.Unlock()
		return nil
	}
	if s.opts.Debounce <= 0 {
		s.mu.Unlock()
		s.runSearch(seq, term)
		return nil
	}
	s.timer = time.AfterFunc(s.opts.Debounce, func() { s.runSearch(seq, term) })
	s.mu.Unlock()
	return nil
}

func (s *Session) runSearch(seq uint64, term string) {
	s.mu.Lock()
	if seq != s.seq || s.closed {
		s.mu.Unlock()
		return
	}
	q := s.leftQuery(term)
	s.mu.Unlock()

	ctx, cancel := s.fetchContext(context.Background())
	defer cancel()
	records, err := s.src.List(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || s.closed {
		s.log.Debug("stale search result dropped", zap.String("term", term))
		return
	}
	s.applied = seq
	if err != nil {
		s.log.Warn("left panel search failed", zap.String("term", term), zap.Error(err))
		return
	}
	s.sel.SetLeftRecords(records)
	s.log.Debug("left panel searched",
		zap.String("term", term),
		zap.Any("filter", q.Filter),
		zap.Int("results", len(records)),
	)
}

// CheckLeft applies the tree's full checked set.
func (s *Session) CheckLeft(checked []engine.Key) (engine.Change, error) {
	return s.transition(func(sy *engine.Synchronizer) engine.Change { return sy.CheckLeft(checked) })
}

// CheckRight applies the checked visible children.
func (s *Session) CheckRight(checked []engine.Key) (engine.Change, error) {
	return s.transition(func(sy *engine.Synchronizer) engine.Change { return sy.CheckRight(checked) })
}

// CheckRightDelta applies newly checked and unchecked children.
func (s *Session) CheckRightDelta(added, removed []engine.Key) (engine.Change, error) {
	return s.transition(func(sy *engine.Synchronizer) engine.Change { return sy.CheckRightDelta(added, removed) })
}

// Activate makes a parent active; nil clears it.
func (s *Session) Activate(key *engine.Key) error {
	_, err := s.transition(func(sy *engine.Synchronizer) engine.Change {
		sy.SetActive(key)
		return engine.Change{}
	})
	return err
}

func (s *Session) transition(fn func(*engine.Synchronizer) engine.Change) (engine.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return engine.Change{}, ErrSessionClosed
	}
	s.touch()
	change := fn(s.sel)
	if !change.Empty() {
		s.log.Debug("selection changed",
			zap.Int("leftAdded", len(change.LeftAdded)),
			zap.Int("leftRemoved", len(change.LeftRemoved)),
			zap.Int("rightAdded", len(change.RightAdded)),
			zap.Int("rightRemoved", len(change.RightRemoved)),
		)
	}
	return change, nil
}

// Cancel closes the selector without committing. The active parent resets;
// both selections are retained for the next open of the same binding.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.close()
	s.sel.Reset()
	st := s.sel.State()
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.binding, st, s.opts.RetainTTL); err != nil {
		return fmt.Errorf("retain selection: %w", err)
	}
	s.log.Debug("selector cancelled", zap.Int("left", st.Left.Size()), zap.Int("right", st.Right.Size()))
	return nil
}

// Confirm closes the selector and returns the committed value.
func (s *Session) Confirm(ctx context.Context) ([]engine.Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.close()
	value := s.sel.Export()
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, s.binding); err != nil {
			s.log.Warn("clear retained selection failed", zap.Error(err))
		}
	}
	s.log.Info("selector confirmed", zap.Int("items", len(value)))
	return value, nil
}

func (s *Session) close() {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) touch() { s.lastUsed = time.Now() }

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
