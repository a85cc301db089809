package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/modules/selector/schema"
	"github.com/mx-space/dualpanel/internal/modules/selector/source"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSchemas struct {
	fields      map[string]*schema.Field
	collections map[string][]filter.FieldMeta
}

func (f *fakeSchemas) Field(_ context.Context, name string) (*schema.Field, error) {
	field, ok := f.fields[name]
	if !ok {
		return nil, schema.ErrFieldNotFound
	}
	return field, nil
}

func (f *fakeSchemas) CollectionFields(_ context.Context, name string) ([]filter.FieldMeta, error) {
	return f.collections[name], nil
}

type failingSource struct{}

func (failingSource) List(context.Context, source.Query) ([]engine.Record, error) {
	return nil, errors.New("database is down")
}

func parents() []engine.Record {
	return []engine.Record{
		{"id": 1, "name": "Admin", "type": "left"},
		{"id": 2, "name": "Sales", "type": "left"},
	}
}

func children() []engine.Record {
	return []engine.Record{
		{"id": 10, "name": "Admin-Create", "type": "right"},
		{"id": 11, "name": "Sales-View", "type": "right"},
	}
}

func setup(t *testing.T, opts Options) (*Manager, *source.MemorySource, RetainStore) {
	t.Helper()
	src := source.NewMemorySource(0)
	src.Put("roles", append(parents(), children()...))
	schemas := &fakeSchemas{
		fields: map[string]*schema.Field{
			"orders.roles": {Name: "orders.roles", Association: filter.Association{Target: "roles", Interface: "m2m"}},
			"orders.none":  {Name: "orders.none"},
		},
	}
	store := NewMemoryStore()
	return NewManager(schemas, src, store, zaptest.NewLogger(t), opts), src, store
}

func immediate() Options {
	opts := DefaultOptions()
	opts.Debounce = 0
	return opts
}

func key(k engine.Key) *engine.Key { return &k }

func TestExampleSessionConfirm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _ := setup(t, immediate())

	s, err := m.Open(ctx, "orders.roles", OpenRequest{HasValue: true})
	require.NoError(t, err)

	view := s.View()
	require.Len(t, view.Tree, 2)
	assert.Equal(t, "Right Panel", view.RightTitle)
	assert.Equal(t, "Please click on a left panel item to view its related items", view.RightEmpty)
	assert.Empty(t, view.LeftEmpty)

	require.NoError(t, s.Activate(key("1")))
	view = s.View()
	assert.Equal(t, "Right Panel (Admin)", view.RightTitle)
	require.Len(t, view.Candidates, 1)
	assert.Equal(t, engine.Key("10"), view.Candidates[0].Items[0].Key)

	change, err := s.CheckRight([]engine.Key{"10"})
	require.NoError(t, err)
	assert.Equal(t, []engine.Key{"1"}, change.LeftAdded)
	assert.True(t, s.View().Candidates[0].Items[0].Checked)

	value, err := m.Confirm(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, []engine.Record{
		{"id": 1, "name": "Admin", "type": "left"},
		{"id": 10, "name": "Admin-Create", "type": "right"},
	}, value)

	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.CheckRight(nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestCancelRetainsSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, store := setup(t, immediate())
	host := map[string]any{"id": 42}

	s, err := m.Open(ctx, "orders.roles", OpenRequest{Record: host})
	require.NoError(t, err)
	assert.Equal(t, "orders.roles:42", s.binding)
	require.NoError(t, s.Activate(key("2")))
	_, err = s.CheckRight([]engine.Key{"11"})
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, s.ID()))
	assert.Equal(t, 0, m.Len())

	st, ok, err := store.Load(ctx, "orders.roles:42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, st.Active)

	// Reopen without a value: retained keys come back, the active parent does not.
	again, err := m.Open(ctx, "orders.roles", OpenRequest{Record: host})
	require.NoError(t, err)
	view := again.View()
	assert.Equal(t, []engine.Key{"2"}, view.State.LeftKeys())
	assert.Equal(t, []engine.Key{"11"}, view.State.RightKeys())
	assert.Nil(t, view.State.Active)

	// A host value wins over retained keys.
	withValue, err := m.Open(ctx, "orders.roles", OpenRequest{
		Record:   host,
		HasValue: true,
		Value:    []engine.Record{{"id": float64(1), "type": "left"}, {"id": float64(10), "type": "right"}},
	})
	require.NoError(t, err)
	view = withValue.View()
	assert.Equal(t, []engine.Key{"1"}, view.State.LeftKeys())
	assert.Equal(t, []engine.Key{"10"}, view.State.RightKeys())
	require.NotNil(t, view.State.Active)
	assert.Equal(t, "Right Panel (Admin)", view.RightTitle)

	// Confirm clears what was retained.
	_, err = m.Confirm(ctx, withValue.ID())
	require.NoError(t, err)
	_, ok, err = store.Load(ctx, "orders.roles:42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchLatestWins(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Debounce = 20 * time.Millisecond
	m, _, _ := setup(t, opts)

	s, err := m.Open(context.Background(), "orders.roles", OpenRequest{})
	require.NoError(t, err)

	require.NoError(t, s.Search("adm"))
	require.NoError(t, s.Search("sal"))
	assert.True(t, s.View().Search.Pending)

	require.Eventually(t, func() bool { return !s.View().Search.Pending }, time.Second, 5*time.Millisecond)
	view := s.View()
	assert.Equal(t, "sal", view.Search.Term)
	require.Len(t, view.Tree, 1)
	assert.Equal(t, "Sales", view.Tree[0].Title)

	require.NoError(t, s.Search("nothing matches"))
	require.Eventually(t, func() bool { return !s.View().Search.Pending }, time.Second, 5*time.Millisecond)
	view = s.View()
	assert.Empty(t, view.Tree)
	assert.Equal(t, "No data available", view.LeftEmpty)
}

func TestDeferredLeftImport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, src, _ := setup(t, immediate())
	src.Put("roles", children())

	s, err := m.Open(ctx, "orders.roles", OpenRequest{
		HasValue: true,
		Value:    []engine.Record{{"id": 2, "type": "left"}, {"id": 11, "type": "right"}},
	})
	require.NoError(t, err)
	view := s.View()
	assert.Empty(t, view.State.LeftKeys())
	assert.Equal(t, []engine.Key{"11"}, view.State.RightKeys())

	// Parents arrive later; the pending left import runs without touching the right side.
	src.Put("roles", append(parents(), children()...))
	require.NoError(t, s.Search(""))
	view = s.View()
	assert.Equal(t, []engine.Key{"2"}, view.State.LeftKeys())
	assert.Equal(t, []engine.Key{"11"}, view.State.RightKeys())
	assert.Equal(t, "Right Panel (Sales)", view.RightTitle)
}

func TestDeferredLeftImportSurvivesFilteredSearch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, src, _ := setup(t, immediate())
	src.Put("roles", children())

	s, err := m.Open(ctx, "orders.roles", OpenRequest{
		HasValue: true,
		Value:    []engine.Record{{"id": 2, "type": "left"}, {"id": 11, "type": "right"}},
	})
	require.NoError(t, err)

	// The first parent page is filtered and does not contain Sales.
	src.Put("roles", append(parents(), children()...))
	require.NoError(t, s.Search("adm"))
	view := s.View()
	require.Len(t, view.Tree, 1)
	assert.Empty(t, view.State.LeftKeys())

	require.NoError(t, s.Search(""))
	view = s.View()
	assert.Equal(t, []engine.Key{"2"}, view.State.LeftKeys())
	assert.Equal(t, []engine.Key{"11"}, view.State.RightKeys())
}

func TestOpenWithoutTarget(t *testing.T) {
	t.Parallel()

	m, _, _ := setup(t, immediate())
	s, err := m.Open(context.Background(), "orders.none", OpenRequest{})
	require.NoError(t, err)

	view := s.View()
	assert.Empty(t, view.Tree)
	assert.Empty(t, view.Candidates)
	assert.Contains(t, view.Diagnostics, ErrNoTarget.Error())
	assert.NoError(t, s.Search("x"))
	assert.False(t, s.View().Search.Pending)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	m, _, _ := setup(t, immediate())
	_, err := m.Open(context.Background(), "missing", OpenRequest{})
	assert.ErrorIs(t, err, schema.ErrFieldNotFound)

	schemas := &fakeSchemas{fields: map[string]*schema.Field{
		"f": {Name: "f", Association: filter.Association{Target: "roles"}},
	}}
	broken := NewManager(schemas, failingSource{}, nil, nil, immediate())
	_, err = broken.Open(context.Background(), "f", OpenRequest{})
	assert.ErrorContains(t, err, "database is down")
	assert.Equal(t, 0, broken.Len())
}

func TestQueriesComposeFilters(t *testing.T) {
	t.Parallel()

	cfg := engine.DefaultConfig()
	cfg.Common = filter.CommonFilter{Enabled: true, Field: "tenant", Value: "acme"}
	field := &schema.Field{Name: "f", Association: filter.Association{Target: "members", ForeignKey: "team_id", Interface: "o2m"}}
	s := newSession("s1", field, cfg, nil, nil, zaptest.NewLogger(t), immediate())
	s.host = map[string]any{"id": 5}

	scope := filter.Or(filter.IsNull("team_id"), filter.Eq("team_id", 5))
	left := s.leftQuery("ops")
	assert.Equal(t, "members", left.Collection)
	assert.Equal(t, filter.Expr{Op: filter.OpAnd, Args: []filter.Expr{
		filter.Eq("tenant", "acme"),
		{Op: filter.OpAnd, Args: []filter.Expr{filter.Includes("name", "ops"), scope}},
		filter.Eq("type", "left"),
	}}, left.Filter)

	right := s.rightQuery()
	assert.Equal(t, filter.Expr{Op: filter.OpAnd, Args: []filter.Expr{
		filter.Eq("tenant", "acme"),
		scope,
		filter.Eq("type", "right"),
	}}, right.Filter)
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := immediate()
	opts.IdleTTL = time.Minute
	m, _, store := setup(t, opts)

	s, err := m.Open(ctx, "orders.roles", OpenRequest{})
	require.NoError(t, err)
	_, err = s.CheckLeft([]engine.Key{"1"})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Sweep(ctx, time.Now()))
	assert.Equal(t, 1, m.Sweep(ctx, time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, m.Len())

	st, ok, err := store.Load(ctx, "orders.roles")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []engine.Key{"1"}, st.LeftKeys())
}
