package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"LojaZap/pkg/response"
	"LojaZap/storage/database"
	"LojaZap/storage/redis"
)

// Healthz 存活与依赖探测
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	sqlDB, err := database.DB().DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unreachable"
		healthy = false
	}

	if err := redis.Client().Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		healthy = false
	}

	if !healthy {
		c.JSON(503, checks)
		return
	}

	response.Success(ctx, c, checks)
}
