package filter

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BSON renders the expression as a MongoDB query document.
func (e Expr) BSON() bson.D {
	switch e.Op {
	case "":
		return bson.D{}
	case OpAnd, OpOr:
		args := make(bson.A, 0, len(e.Args))
		for _, a := range e.Args {
			args = append(args, a.BSON())
		}
		return bson.D{{Key: string(e.Op), Value: args}}
	case OpEq:
		return bson.D{{Key: e.Field, Value: bson.D{{Key: "$eq", Value: e.Value}}}}
	case OpIs:
		// {field: null} matches both null and missing fields.
		return bson.D{{Key: e.Field, Value: nil}}
	case OpIncludes:
		term, _ := e.Value.(string)
		return bson.D{{Key: e.Field, Value: primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}}}
	default:
		// Unknown operators never match.
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}
	}
}
