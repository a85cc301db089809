package source

import (
	"context"
	"testing"
	"time"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func TestQueryNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       Query
		max      int
		page     int
		pageSize int
		err      error
	}{
		{name: "defaults", in: Query{Collection: "roles"}, page: 1, pageSize: DefaultPageSize},
		{name: "capped", in: Query{Collection: "roles", Page: 3, PageSize: 5000}, max: 200, page: 3, pageSize: 200},
		{name: "kept", in: Query{Collection: "roles", Page: 2, PageSize: 20}, max: 200, page: 2, pageSize: 20},
		{name: "no collection", in: Query{}, err: ErrNoCollection},
		{name: "injection", in: Query{Collection: "roles; DROP TABLE x"}, err: ErrInvalidCollection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.in.normalize(tt.max)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, got.Page)
			assert.Equal(t, tt.pageSize, got.PageSize)
		})
	}
}

func TestMemorySource(t *testing.T) {
	t.Parallel()

	src := NewMemorySource(2)
	src.Put("roles", []engine.Record{
		{"id": 1, "name": "Admin", "type": "left"},
		{"id": 2, "name": "Sales", "type": "left"},
		{"id": 3, "name": "Support", "type": "left"},
		{"id": 10, "name": "Admin-Create", "type": "right"},
	})
	ctx := context.Background()

	page1, err := src.List(ctx, Query{Collection: "roles", Filter: filter.Eq("type", "left")})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, 1, page1[0]["id"])

	page2, err := src.List(ctx, Query{Collection: "roles", Filter: filter.Eq("type", "left"), Page: 2})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, 3, page2[0]["id"])

	// Returned records are copies.
	page2[0]["name"] = "changed"
	again, err := src.List(ctx, Query{Collection: "roles", Filter: filter.Eq("id", 3)})
	require.NoError(t, err)
	assert.Equal(t, "Support", again[0]["name"])

	none, err := src.List(ctx, Query{Collection: "missing"})
	require.NoError(t, err)
	assert.Empty(t, none)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.List(cancelled, Query{Collection: "roles"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLSourceQuery(t *testing.T) {
	t.Parallel()

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/selector",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	src := NewSQLSource(db, 1000)
	q, err := Query{Collection: "roles", Filter: filter.Eq("type", "left"), Page: 3, PageSize: 50}.normalize(src.maxSize)
	require.NoError(t, err)

	var rows []map[string]any
	stmt := src.query(db, q).Find(&rows).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "SELECT * FROM `roles` WHERE `type` = ? ORDER BY `id` LIMIT")
	assert.Contains(t, sql, "LIMIT")
	assert.Contains(t, sql, "OFFSET")
	require.NotEmpty(t, stmt.Vars)
	assert.Equal(t, "left", stmt.Vars[0])

	limit, ok := stmt.Clauses["LIMIT"].Expression.(clause.Limit)
	require.True(t, ok)
	require.NotNil(t, limit.Limit)
	assert.Equal(t, 50, *limit.Limit)
	assert.Equal(t, 100, limit.Offset)

	q, err = Query{Collection: "roles", OrderBy: "code"}.normalize(src.maxSize)
	require.NoError(t, err)
	sql = src.query(db, q).Find(&rows).Statement.SQL.String()
	assert.Contains(t, sql, "ORDER BY `code`")

	_, err = src.List(context.Background(), Query{Collection: "bad name"})
	assert.ErrorIs(t, err, ErrInvalidCollection)
}

func TestSQLRecord(t *testing.T) {
	t.Parallel()

	rec := sqlRecord(map[string]any{"id": int64(1), "name": []byte("Admin"), "parent": nil})
	assert.Equal(t, engine.Record{"id": int64(1), "name": "Admin", "parent": nil}, rec)
}

func TestMongoFindOptions(t *testing.T) {
	t.Parallel()

	q, err := Query{Collection: "roles", Page: 2, PageSize: 25}.normalize(0)
	require.NoError(t, err)
	opts := findOptions(q)
	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(25), *opts.Skip)
	assert.Equal(t, int64(25), *opts.Limit)
}

func TestMongoRecord(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc := bson.M{
		"_id":     oid,
		"name":    "Admin",
		"created": primitive.NewDateTimeFromTime(created),
		"tags":    bson.A{"a", oid},
		"meta":    bson.D{{Key: "level", Value: int32(2)}},
	}

	rec := mongoRecord(doc)
	assert.Equal(t, oid.Hex(), rec["_id"])
	assert.Equal(t, oid.Hex(), rec["id"])
	assert.True(t, created.Equal(rec["created"].(time.Time)))
	assert.Equal(t, []any{"a", oid.Hex()}, rec["tags"])
	assert.Equal(t, map[string]any{"level": int32(2)}, rec["meta"])

	k, ok := rec.Key("id")
	require.True(t, ok)
	assert.Equal(t, engine.Key(oid.Hex()), k)

	explicit := mongoRecord(bson.M{"_id": oid, "id": 7})
	assert.Equal(t, 7, explicit["id"])
}
