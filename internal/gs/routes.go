package gs

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pocketqube-lab/comms-server/internal/config"
	"github.com/pocketqube-lab/comms-server/internal/gs/middleware"
)

// RegisterRoutes 注册地面站API路由
func RegisterRoutes(r *gin.Engine, h *Handler, authCfg config.APIAuthConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}

	api := r.Group("/api/v1")
	if authCfg.Enabled {
		api.Use(middleware.TokenAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("tokens", len(authCfg.Tokens)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 上行指令
	api.POST("/commands", h.SubmitCommand)
	api.GET("/commands", h.ListCommands)
	api.GET("/commands/:id", h.GetCommand)
	api.POST("/tle", h.UploadTLE)

	// 遥测归档
	api.GET("/telemetry", h.ListTelemetry)
	api.GET("/telemetry/latest", h.LatestTelemetry)

	// 链路与队列
	api.GET("/link", h.LinkStatus)
	api.GET("/queue", h.QueueStats)
	api.GET("/journal", h.RecentJournal)

	logger.Info("ground api routes registered", zap.Int("endpoints", 9))
}
