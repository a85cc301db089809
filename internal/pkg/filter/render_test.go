package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestBSON(t *testing.T) {
	t.Parallel()

	expr := And(Eq("type", "left"), Or(IsNull("owner"), Eq("owner", 3)), Includes("name", "a.b"))
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "type", Value: bson.D{{Key: "$eq", Value: "left"}}}},
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "owner", Value: nil}},
			bson.D{{Key: "owner", Value: bson.D{{Key: "$eq", Value: 3}}}},
		}}},
		bson.D{{Key: "name", Value: primitive.Regex{Pattern: `a\.b`, Options: "i"}}},
	}}}
	assert.Equal(t, want, expr.BSON())
	assert.Equal(t, bson.D{}, Expr{}.BSON())

	// The document must be encodable by the driver.
	_, err := bson.Marshal(expr.BSON())
	require.NoError(t, err)
}

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/selector?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestScopeSQL(t *testing.T) {
	t.Parallel()

	db := dryRunDB(t)
	expr := And(Eq("type", "left"), Or(IsNull("owner_id"), Eq("owner_id", 3)), Includes("name", "50%_off"))

	var rows []map[string]any
	stmt := db.Table("departments").Scopes(Scope(expr)).Find(&rows).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "SELECT * FROM `departments` WHERE")
	assert.Contains(t, sql, "`type` = ?")
	assert.Contains(t, sql, "`owner_id` IS NULL OR `owner_id` = ?")
	assert.Contains(t, sql, "`name` LIKE ?")
	assert.Equal(t, []any{"left", 3, `%50\%\_off%`}, stmt.Vars)
}

func TestScopeEmpty(t *testing.T) {
	t.Parallel()

	db := dryRunDB(t)
	var rows []map[string]any
	stmt := db.Table("departments").Scopes(Scope(Expr{})).Find(&rows).Statement
	assert.NotContains(t, stmt.SQL.String(), "WHERE")

	stmt = db.Table("departments").Scopes(Scope(Expr{Op: "$regex"})).Find(&rows).Statement
	assert.Contains(t, stmt.SQL.String(), "1 = 0")
}

func TestSearchableFields(t *testing.T) {
	t.Parallel()

	fields := []FieldMeta{
		{Name: "name", Type: "string", Interface: "input"},
		{Name: "password", Type: "password", Interface: "password"},
		{Name: "apiToken", Type: "string", Interface: "input"},
		{Name: "secret", Type: "token"},
		{Name: "age", Type: "integer", Interface: "integer"},
		{Name: "status", Type: "json", Interface: "select"},
		{Name: "avatar", Type: "belongsTo", Interface: "m2o"},
		{Name: "", Type: "string"},
	}
	got := SearchableFields(fields)
	names := make([]string, 0, len(got))
	for _, f := range got {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "age", "status"}, names)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	fields := []FieldMeta{
		{Name: "name", Type: "string"},
		{Name: "age", Type: "integer"},
	}

	assert.True(t, Search("  ", fields, "name").IsEmpty())
	assert.Equal(t, Includes("title", "ops"), Search("ops", nil, "title"))
	assert.Equal(t, Includes("name", "ops"), Search("ops", nil, ""))
	assert.True(t, Search("ops", []FieldMeta{{Name: "password", Type: "password"}}, "name").IsEmpty())

	text := Search("ops", fields, "name")
	assert.Equal(t, Expr{Op: OpOr, Args: []Expr{Includes("name", "ops"), Includes("age", "ops")}}, text)

	numeric := Search("42", fields, "name")
	assert.Equal(t, Expr{Op: OpOr, Args: []Expr{
		Includes("name", "42"),
		{Op: OpOr, Args: []Expr{Includes("age", "42"), Eq("age", float64(42))}},
	}}, numeric)

	assert.True(t, numeric.Match(map[string]any{"name": "x", "age": 42}))
	assert.False(t, numeric.Match(map[string]any{"name": "x", "age": 7}))
}

func TestAssociationScope(t *testing.T) {
	t.Parallel()

	o2m := Association{Target: "members", ForeignKey: "team_id", SourceKey: "id", Interface: "o2m"}
	assert.Equal(t, Or(IsNull("team_id"), Eq("team_id", 5)), AssociationScope(o2m, map[string]any{"id": 5}))
	assert.True(t, AssociationScope(o2m, map[string]any{"id": nil}).IsEmpty())
	assert.True(t, AssociationScope(o2m, nil).IsEmpty())

	m2m := o2m
	m2m.Interface = "m2m"
	assert.True(t, AssociationScope(m2m, map[string]any{"id": 5}).IsEmpty())

	oho := Association{ForeignKey: "user_id", Interface: "oho"}
	scope := AssociationScope(oho, map[string]any{"id": "u1"})
	assert.True(t, scope.Match(map[string]any{"user_id": nil}))
	assert.True(t, scope.Match(map[string]any{"user_id": "u1"}))
	assert.False(t, scope.Match(map[string]any{"user_id": "u2"}))

	assert.Equal(t, "name", Association{}.LabelField())
	assert.Equal(t, "code", Association{TargetKey: "code"}.LabelField())
}
