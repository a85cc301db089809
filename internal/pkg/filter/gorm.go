package filter

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Clause renders the expression as a gorm clause expression. Column names go
// through gorm's quoting, values are bound parameters.
func (e Expr) Clause() clause.Expression {
	switch e.Op {
	case OpAnd, OpOr:
		exprs := make([]clause.Expression, 0, len(e.Args))
		for _, a := range e.Args {
			if c := a.Clause(); c != nil {
				exprs = append(exprs, c)
			}
		}
		if e.Op == OpAnd {
			return clause.And(exprs...)
		}
		return clause.Or(exprs...)
	case OpEq:
		return clause.Eq{Column: clause.Column{Name: e.Field}, Value: e.Value}
	case OpIs:
		return clause.Eq{Column: clause.Column{Name: e.Field}, Value: nil}
	case OpIncludes:
		term, _ := e.Value.(string)
		return clause.Like{Column: clause.Column{Name: e.Field}, Value: "%" + likeEscaper.Replace(term) + "%"}
	default:
		return nil
	}
}

// Scope applies the expression as a WHERE clause. The empty expression leaves
// the query untouched.
func Scope(e Expr) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if e.IsEmpty() {
			return db
		}
		c := e.Clause()
		if c == nil {
			return db.Where("1 = 0")
		}
		return db.Clauses(clause.Where{Exprs: []clause.Expression{c}})
	}
}
