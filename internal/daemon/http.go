package daemon

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter serves /metrics from the daemon's registry and a /health
// check that never touches the loop.
func (d *Daemon) newRouter(started time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.logger))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"driver": d.driver.Name(),
			"uptime": time.Since(started).Round(time.Second).String(),
		})
	})
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"bytes", c.Writer.Size())
	}
}
