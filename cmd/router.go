package main

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/angeloszaimis/gemini-proxy/config"
	"github.com/angeloszaimis/gemini-proxy/internal/handler"
	"github.com/angeloszaimis/gemini-proxy/internal/metrics"
	"github.com/angeloszaimis/gemini-proxy/internal/static"
)

func setupRouter(log *slog.Logger, cfg *config.Config, generate http.Handler, health http.Handler, collector *metrics.Collector) *gin.Engine {
	if cfg.Server.Environment == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		requestID(),
		accessLog(log),
		gin.CustomRecovery(recoverJSON(log)),
		cors.New(corsConfig(cfg.CORS)),
	)

	r.POST("/api/generate", gin.WrapH(generate))
	r.GET("/health", gin.WrapH(health))
	r.GET("/metrics", gin.WrapF(collector.Handler(cfg.Upstream.Model)))
	r.NoRoute(gin.WrapH(static.New(cfg.Static.Dir, log)))

	return r
}

func corsConfig(cc config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", handler.RequestIDHeader},
		ExposeHeaders: []string{handler.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if len(cc.AllowedOrigins) == 0 || slices.Contains(cc.AllowedOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cc.AllowedOrigins
	}

	return c
}

// requestID echoes the caller's X-Request-ID or assigns a new one, and makes
// it visible to downstream handlers through the request header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(handler.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(handler.RequestIDHeader, id)
		}

		c.Header(handler.RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("Handled request",
			slog.String("request_id", c.GetHeader(handler.RequestIDHeader)),
			slog.String("client", c.ClientIP()),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("bytes", c.Writer.Size()),
			slog.Duration("duration", time.Since(start)))
	}
}

func recoverJSON(log *slog.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		log.Error("Proxy server error",
			slog.String("request_id", c.GetHeader(handler.RequestIDHeader)),
			slog.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, handler.ErrorResponse{Error: handler.MsgInternalError})
	}
}
