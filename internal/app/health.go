package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pocketqube-lab/comms-server/internal/comms"
	"github.com/pocketqube-lab/comms-server/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器
func NewHealthAggregator(dbpool *pgxpool.Pool) *health.Aggregator {
	if dbpool == nil {
		return health.NewAggregator()
	}
	return health.NewAggregator(
		health.NewDatabaseChecker(dbpool),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddLinkChecker 添加射频链路检查器到聚合器
func AddLinkChecker(aggregator *health.Aggregator, task *comms.Task) {
	aggregator.AddChecker(health.NewLinkChecker(task))
}
