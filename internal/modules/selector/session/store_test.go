package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hashicorp/go-set/v2"
	"github.com/mx-space/dualpanel/internal/models"
	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func sampleState() engine.State {
	active := engine.Key("1")
	return engine.State{
		Left:   set.From([]engine.Key{"1", "2"}),
		Right:  set.From([]engine.Key{"10"}),
		Active: &active,
	}
}

// exerciseStore checks the contract every retention store shares.
func exerciseStore(t *testing.T, store RetainStore, binding string) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Load(ctx, binding)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, binding, sampleState(), time.Hour))
	st, ok, err := store.Load(ctx, binding)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []engine.Key{"1", "2"}, st.LeftKeys())
	assert.Equal(t, []engine.Key{"10"}, st.RightKeys())
	assert.Nil(t, st.Active, "active key is never retained")

	// Saving again overwrites.
	next := engine.NewState()
	next.Right.Insert("11")
	require.NoError(t, store.Save(ctx, binding, next, time.Hour))
	st, ok, err = store.Load(ctx, binding)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, st.LeftKeys())
	assert.Equal(t, []engine.Key{"11"}, st.RightKeys())

	require.NoError(t, store.Delete(ctx, binding))
	_, ok, err = store.Load(ctx, binding)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	exerciseStore(t, NewMemoryStore(), "orders.roles:1")
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "b", sampleState(), time.Minute))
	require.NoError(t, store.Save(ctx, "forever", sampleState(), 0))

	now = now.Add(2 * time.Minute)
	_, ok, err := store.Load(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Load(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStorePurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "short", sampleState(), time.Minute))
	require.NoError(t, store.Save(ctx, "long", sampleState(), time.Hour))
	now = now.Add(2 * time.Minute)

	n, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.entries.Size())
}

func openOptionsDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.OptionModel{}))
	return db
}

func TestOptionStore(t *testing.T) {
	t.Parallel()

	exerciseStore(t, NewOptionStore(openOptionsDB(t)), "orders.roles:1")
}

func TestOptionStoreExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openOptionsDB(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewOptionStore(db)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "b", sampleState(), time.Minute))
	now = now.Add(2 * time.Minute)
	_, ok, err := store.Load(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	var count int64
	require.NoError(t, db.Model(&models.OptionModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "expired row is removed on load")
}

func TestOptionStorePurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openOptionsDB(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewOptionStore(db)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "short", sampleState(), time.Minute))
	require.NoError(t, store.Save(ctx, "long", sampleState(), time.Hour))
	require.NoError(t, store.Save(ctx, "forever", sampleState(), 0))
	require.NoError(t, db.Create(&models.OptionModel{Name: retainPrefix + "broken", Value: "{"}).Error)
	require.NoError(t, db.Create(&models.OptionModel{Name: "site.title", Value: "{"}).Error)
	now = now.Add(2 * time.Minute)

	n, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var names []string
	require.NoError(t, db.Model(&models.OptionModel{}).Order("name").Pluck("name", &names).Error)
	assert.Equal(t, []string{retainPrefix + "forever", retainPrefix + "long", "site.title"}, names)
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	url := os.Getenv("SELECTOR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SELECTOR_TEST_REDIS_URL not set")
	}
	client, err := redis.Connect(url, "dualpanel-test:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client)
	exerciseStore(t, store, "orders.roles:"+time.Now().Format(time.RFC3339Nano))

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ttl", sampleState(), time.Minute))
	ttl, err := client.TTL(ctx, retainPrefix+"ttl")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	require.NoError(t, store.Delete(ctx, "ttl"))
}
