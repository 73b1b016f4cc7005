package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"LojaZap/internal/model"
	"LojaZap/internal/model/dto"
	"LojaZap/internal/queue"
	"LojaZap/internal/service"
	"LojaZap/pkg/response"
)

// EnqueueMessage 投递一条独立消息（已渲染文案），绕过活动直接入队
// POST /v1/messages
func EnqueueMessage(ctx context.Context, c *app.RequestContext) {
	var req dto.EnqueueSingleRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Campaign().EnqueueSingle(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// PublishCashbackEvent 接收业务侧返现事件并投递到消息总线。
// 与 /v1/messages 的区别：事件异步消费、带幂等去重，适合业务系统回调。
// POST /v1/events/cashback
func PublishCashbackEvent(ctx context.Context, c *app.RequestContext) {
	var msg model.CashbackEarnedMessage
	if err := c.BindAndValidate(&msg); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if err := queue.PublishCashbackEarned(msg); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}
