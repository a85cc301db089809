package source

import (
	"context"
	"fmt"

	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource reads records from collections of a MongoDB database.
type MongoSource struct {
	db      *mongo.Database
	maxSize int
}

func NewMongoSource(db *mongo.Database, maxSize int) *MongoSource {
	return &MongoSource{db: db, maxSize: maxSize}
}

func (s *MongoSource) List(ctx context.Context, q Query) ([]engine.Record, error) {
	q, err := q.normalize(s.maxSize)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(q.Collection).Find(ctx, q.Filter.BSON(), findOptions(q))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.Collection, err)
	}
	out := make([]engine.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, mongoRecord(doc))
	}
	return out, nil
}

func findOptions(q Query) *options.FindOptions {
	return options.Find().
		SetSkip(int64(q.offset())).
		SetLimit(int64(q.PageSize)).
		SetSort(bson.D{{Key: "_id", Value: 1}})
}

// mongoRecord converts driver types into plain Go values. ObjectIDs become
// hex strings and documents without an id field get one from _id.
func mongoRecord(doc bson.M) engine.Record {
	rec := make(engine.Record, len(doc)+1)
	for k, v := range doc {
		rec[k] = plainValue(v)
	}
	if _, ok := rec["id"]; !ok {
		if id, ok := rec["_id"]; ok {
			rec["id"] = id
		}
	}
	return rec
}

func plainValue(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time()
	case bson.M:
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = plainValue(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, inner := range x {
			out[i] = plainValue(inner)
		}
		return out
	default:
		return v
	}
}
