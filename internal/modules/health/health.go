package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/dualpanel/internal/pkg/cron"
	"github.com/mx-space/dualpanel/internal/pkg/response"
	"gorm.io/gorm"
)

// RegisterRoutes mounts the public health check and the admin job controls.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.PingContext(c.Request.Context()) == nil

		status, code := "ok", http.StatusOK
		if !dbOK {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "database": dbOK})
	})

	jobs := rg.Group("/health/cron", authMW)
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, sched.List())
	})
	jobs.POST("/run/:name", func(c *gin.Context) {
		if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "job triggered"})
	})
	jobs.GET("/task/:name", func(c *gin.Context) {
		result, err := sched.GetTask(c.Param("name"))
		if err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, result)
	})
}
