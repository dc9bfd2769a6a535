package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alamriomar/moeen/backend/config"
	"github.com/alamriomar/moeen/backend/internal/api/handler"
	"github.com/alamriomar/moeen/backend/internal/api/middleware"
	"github.com/alamriomar/moeen/backend/pkg/jwt"
	"github.com/alamriomar/moeen/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可为 nil，此时写接口不限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// ── 健康检查 / 指标 ──
	r.GET("/health", healthCheck(rdb))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(jwtMgr))
	writeLimit := middleware.RateLimit(rdb, cfg.Tracker.RateLimit, time.Minute)
	{
		// 考勤连续性模块
		cont := authorized.Group("/continuity")
		{
			cont.GET("/schedules", h.Continuity.ListSchedules)
			cont.PUT("/schedules", writeLimit, h.Continuity.IngestSchedule)
			cont.POST("/schedules/import", writeLimit, h.Continuity.ImportSchedules)
			cont.POST("/submissions", writeLimit, h.Continuity.RecordSubmission)
			cont.GET("/alerts", h.Continuity.ListAlerts)
			cont.POST("/alerts/dismiss", writeLimit, h.Continuity.DismissAlert)
			cont.GET("/courses/status", h.Continuity.GetCourseStatus)
			cont.GET("/overview", h.Continuity.GetOverview)
			cont.GET("/usage", h.Continuity.GetUsage)
			cont.DELETE("", writeLimit, h.Continuity.ClearAll)
		}

		// 导出模块
		export := authorized.Group("/export")
		{
			export.GET("/continuity", h.Export.ExportContinuity)
		}
	}

	return r
}

// healthCheck 存活检查；启用 Redis 时一并 Ping，失败返回 503
func healthCheck(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := rdb.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": "ok"})
	}
}
