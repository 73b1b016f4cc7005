package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"LojaZap/internal/handler"
	"LojaZap/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/healthz", handler.Healthz)

	v1 := h.Group("/v1")

	// 活动生命周期路由
	campaigns := v1.Group("/campaigns")
	{
		campaigns.POST("", handler.CreateCampaign)
		campaigns.POST("/:campaign_id/activate", handler.ActivateCampaign)
		campaigns.POST("/:campaign_id/pause", handler.PauseCampaign)
		campaigns.POST("/:campaign_id/resume", handler.ResumeCampaign)
		campaigns.POST("/:campaign_id/cancel", handler.CancelCampaign)
		campaigns.POST("/:campaign_id/duplicate", handler.DuplicateCampaign)
		campaigns.DELETE("/:campaign_id", handler.DeleteCampaign)
		campaigns.GET("/:campaign_id/stats", handler.GetCampaignStats)
	}

	// 独立消息路由
	messages := v1.Group("/messages")
	{
		messages.POST("", handler.EnqueueMessage)
	}

	// 业务事件回调路由
	events := v1.Group("/events")
	{
		events.POST("/cashback", handler.PublishCashbackEvent)
	}
}
