package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"LojaZap/internal/model/dto"
	"LojaZap/internal/service"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/response"
)

func campaignID(c *app.RequestContext) (int64, error) {
	id, err := strconv.ParseInt(c.Param("campaign_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.CampaignNotFound
	}
	return id, nil
}

// CreateCampaign 创建活动并物化收件人队列
// POST /v1/campaigns
func CreateCampaign(ctx context.Context, c *app.RequestContext) {
	var req dto.CreateCampaignRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Campaign().EnqueueCampaign(ctx, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// ActivateCampaign 激活活动，队列行开始被 worker 领取
// POST /v1/campaigns/:campaign_id/activate
func ActivateCampaign(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := service.Campaign().Activate(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

// PauseCampaign 暂停活动
// POST /v1/campaigns/:campaign_id/pause
func PauseCampaign(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := service.Campaign().Pause(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

// ResumeCampaign 恢复活动
// POST /v1/campaigns/:campaign_id/resume
func ResumeCampaign(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := service.Campaign().Resume(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

// CancelCampaign 取消活动并清扫未发送的队列行
// POST /v1/campaigns/:campaign_id/cancel
func CancelCampaign(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := service.Campaign().Cancel(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

// DuplicateCampaign 复制活动配置与文案为新的草稿
// POST /v1/campaigns/:campaign_id/duplicate
func DuplicateCampaign(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	clone, err := service.Campaign().Duplicate(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, clone)
}

// DeleteCampaign 删除活动（仅 draft / cancelled）
// DELETE /v1/campaigns/:campaign_id
func DeleteCampaign(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := service.Campaign().Delete(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.NoContent(ctx, c)
}

// GetCampaignStats 按状态聚合的队列行计数
// GET /v1/campaigns/:campaign_id/stats
func GetCampaignStats(ctx context.Context, c *app.RequestContext) {
	id, err := campaignID(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	stats, err := service.Campaign().Stats(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, stats)
}
