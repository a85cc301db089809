// Package selector exposes dual panel selector sessions and their field
// schemas over HTTP.
package selector

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/dualpanel/internal/modules/selector/engine"
	"github.com/mx-space/dualpanel/internal/modules/selector/schema"
	"github.com/mx-space/dualpanel/internal/modules/selector/session"
	"github.com/mx-space/dualpanel/internal/pkg/filter"
	"github.com/mx-space/dualpanel/internal/pkg/pagination"
	"github.com/mx-space/dualpanel/internal/pkg/response"
)

type Handler struct {
	schemas  *schema.Service
	sessions *session.Manager
}

func NewHandler(schemas *schema.Service, sessions *session.Manager) *Handler {
	return &Handler{schemas: schemas, sessions: sessions}
}

// RegisterRoutes mounts the selector API. authMW guards schema writes;
// openMW runs in front of opening a session.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, openMW ...gin.HandlerFunc) {
	g := rg.Group("/selector")

	g.GET("/fields/:name", h.getField)
	g.POST("/values/remove", h.removeValue)

	authed := g.Group("", authMW)
	authed.GET("/fields", h.listFields)
	authed.PUT("/fields/:name", h.saveField)
	authed.PUT("/collections/:name", h.saveCollection)

	sess := g.Group("/sessions")
	sess.POST("", append(openMW, h.open)...)
	sess.GET("/:id", h.view)
	sess.POST("/:id/search", h.search)
	sess.PUT("/:id/left", h.checkLeft)
	sess.PUT("/:id/right", h.checkRight)
	sess.PUT("/:id/active", h.activate)
	sess.POST("/:id/cancel", h.cancel)
	sess.POST("/:id/confirm", h.confirm)
}

func (h *Handler) listFields(c *gin.Context) {
	fields, page, err := h.schemas.ListFields(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, fields, page)
}

func (h *Handler) getField(c *gin.Context) {
	f, err := h.schemas.Field(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	cfg, err := f.Config()
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"field": f, "config": cfg})
}

func (h *Handler) saveField(c *gin.Context) {
	var dto saveFieldDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	f, err := h.schemas.SaveField(c.Request.Context(), schema.Field{
		Name:        c.Param("name"),
		Collection:  dto.Collection,
		Association: dto.Association,
		Required:    dto.Required,
		Props:       dto.Props,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, f)
}

func (h *Handler) saveCollection(c *gin.Context) {
	var dto saveCollectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.schemas.SaveCollection(c.Request.Context(), c.Param("name"), dto.Fields); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) open(c *gin.Context) {
	var dto openDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req := session.OpenRequest{Record: dto.Record, Filter: dto.Filter}
	if dto.Value != nil {
		req.Value, req.HasValue = *dto.Value, true
	}
	s, err := h.sessions.Open(c.Request.Context(), dto.Field, req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, s.View())
}

func (h *Handler) view(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.View())
}

func (h *Handler) search(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var dto searchDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := s.Search(dto.Term); err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, s.View())
}

func (h *Handler) checkLeft(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var dto checkDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	change, err := s.CheckLeft(dto.Checked)
	h.transition(c, s, change, err)
}

func (h *Handler) checkRight(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var dto checkDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var (
		change engine.Change
		err    error
	)
	if dto.Checked != nil {
		change, err = s.CheckRight(dto.Checked)
	} else {
		change, err = s.CheckRightDelta(dto.Added, dto.Removed)
	}
	h.transition(c, s, change, err)
}

func (h *Handler) activate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var dto activateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.transition(c, s, engine.Change{}, s.Activate(dto.Key))
}

func (h *Handler) transition(c *gin.Context, s *session.Session, change engine.Change, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"change": change, "view": s.View()})
}

func (h *Handler) cancel(c *gin.Context) {
	if err := h.sessions.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) confirm(c *gin.Context) {
	value, err := h.sessions.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"value": value})
}

// removeValue drops one tag from a committed value, as closing a tag in the
// field display does.
func (h *Handler) removeValue(c *gin.Context) {
	var dto removeValueDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cfg := engine.DefaultConfig()
	if dto.Field != "" {
		f, err := h.schemas.Field(c.Request.Context(), dto.Field)
		if err != nil {
			writeError(c, err)
			return
		}
		if cfg, err = f.Config(); err != nil {
			writeError(c, err)
			return
		}
	}
	key, ok := engine.KeyOf(dto.Key)
	if !ok {
		response.BadRequest(c, "key must be a string or number")
		return
	}
	value := engine.RemoveValueItem(dto.Value, key, cfg)
	labels := make([]string, len(value))
	for i, r := range value {
		labels[i] = engine.ItemLabel(r)
	}
	response.OK(c, gin.H{"value": value, "labels": labels})
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, schema.ErrFieldNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		response.Conflict(c, err.Error())
	case errors.Is(err, schema.ErrInvalidField), errors.Is(err, engine.ErrInvalidConfig):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

type saveFieldDTO struct {
	Collection  string             `json:"collection"`
	Association filter.Association `json:"association"`
	Required    bool               `json:"required"`
	Props       map[string]any     `json:"props"`
}

type saveCollectionDTO struct {
	Fields []filter.FieldMeta `json:"fields"`
}

type openDTO struct {
	Field  string           `json:"field" binding:"required"`
	Value  *[]engine.Record `json:"value"`
	Record map[string]any   `json:"record"`
	Filter filter.Expr      `json:"filter"`
}

type searchDTO struct {
	Term string `json:"term"`
}

// checkDTO carries either the full checked set or a delta.
type checkDTO struct {
	Checked []engine.Key `json:"checked"`
	Added   []engine.Key `json:"added"`
	Removed []engine.Key `json:"removed"`
}

type activateDTO struct {
	Key *engine.Key `json:"key"`
}

type removeValueDTO struct {
	Field string          `json:"field"`
	Key   any             `json:"key"`
	Value []engine.Record `json:"value"`
}
