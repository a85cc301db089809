package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/dualpanel/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Query is a 1-based page request.
type Query struct {
	Page int
	Size int
}

// FromContext reads ?page= and ?size=, clamping both into range.
func FromContext(c *gin.Context) Query {
	return Normalize(Query{
		Page: atoi(c.Query("page")),
		Size: atoi(c.Query("size")),
	})
}

// Normalize clamps a query into range.
func Normalize(q Query) Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = DefaultSize
	}
	if q.Size > MaxSize {
		q.Size = MaxSize
	}
	return q
}

// Offset is the number of rows before the page.
func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Meta describes the page within total rows.
func (q Query) Meta(total int64) response.Pagination {
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}

// Paginate counts the rows of db and loads one page of them into dest.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	q = Normalize(q)
	base := db.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}
	if err := base.Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}
	return q.Meta(total), nil
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
