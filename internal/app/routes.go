package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/dualpanel/internal/middleware"
	"github.com/mx-space/dualpanel/internal/modules/health"
	"github.com/mx-space/dualpanel/internal/modules/selector"
	"github.com/mx-space/dualpanel/internal/modules/selector/schema"
	jwtpkg "github.com/mx-space/dualpanel/internal/pkg/jwt"
	"github.com/mx-space/dualpanel/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(schemas *schema.Service, signer *jwtpkg.Signer, counter middleware.Counter) {
	r := a.router
	r.NoRoute(response.NotFound)
	r.NoMethod(response.MethodNotAllowed)

	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth(signer))

	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	api.GET("/info", a.info)
	health.RegisterRoutes(api, a.db, a.sched, middleware.Auth(signer))

	var openMW []gin.HandlerFunc
	if counter != nil && a.cfg.Selector.OpenRateLimit > 0 {
		openMW = append(openMW, middleware.RateLimit(counter, int64(a.cfg.Selector.OpenRateLimit), time.Second, a.logger))
	}
	selector.NewHandler(schemas, a.sessions).RegisterRoutes(api, middleware.Auth(signer), openMW...)
}

func (a *App) info(c *gin.Context) {
	response.OK(c, gin.H{
		"name":     "dualpanel",
		"env":      a.cfg.Env,
		"source":   a.cfg.Selector.Source,
		"retain":   a.cfg.Selector.Retain,
		"sessions": a.sessions.Len(),
		"uptime":   time.Since(a.started).Truncate(time.Second).String(),
	})
}
