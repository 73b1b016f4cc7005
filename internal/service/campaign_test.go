package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LojaZap/internal/model"
	"LojaZap/internal/model/dto"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/snowflake"
)

func TestMain(m *testing.M) {
	snowflake.Init(1, 1)
	m.Run()
}

func seedCampaign(t *testing.T, f *fixture, recipients int) int64 {
	t.Helper()
	f.seedStore(1, "Loja Centro")

	req := &dto.CreateCampaignRequest{
		StoreID:   1,
		Name:      "Volta às aulas",
		Category:  "promo",
		Templates: []string{"Oi {nome}, promoção na {loja}!"},
	}
	for i := 0; i < recipients; i++ {
		req.Recipients = append(req.Recipients, dto.RecipientInput{
			Name:  "Cliente",
			Phone: "5511987654321",
		})
	}

	resp, err := f.campaignService().EnqueueCampaign(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.ItemIDs, recipients)
	return resp.CampaignID
}

func TestEnqueueCampaignMaterializesQueue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	id := seedCampaign(t, f, 3)

	campaign := f.campaigns.get(id)
	assert.Equal(t, model.CampaignStatusDraft, campaign.Status)
	assert.Equal(t, 3, campaign.TotalRecipients)
	assert.Equal(t, defaultStartHour, campaign.StartHour)
	assert.Equal(t, defaultEndHour, campaign.EndHour)

	counts, err := f.queue.CountsByCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[model.QueueItemStatusPending])
}

func TestEnqueueCampaignRequiresTemplates(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")

	_, err := f.campaignService().EnqueueCampaign(context.Background(), &dto.CreateCampaignRequest{
		StoreID:    1,
		Name:       "Sem texto",
		Recipients: []dto.RecipientInput{{Phone: "5511987654321"}},
	})
	assert.ErrorIs(t, err, errors.CampaignNoContent)
}

func TestEnqueueCampaignUnknownStore(t *testing.T) {
	f := newFixture()

	_, err := f.campaignService().EnqueueCampaign(context.Background(), &dto.CreateCampaignRequest{
		StoreID:   99,
		Name:      "Loja fantasma",
		Templates: []string{"Oi"},
	})
	assert.ErrorIs(t, err, errors.StoreNotFound)
}

func TestEnqueueSingle(t *testing.T) {
	f := newFixture()
	f.seedStore(1, "Loja Centro")

	resp, err := f.campaignService().EnqueueSingle(context.Background(), &dto.EnqueueSingleRequest{
		StoreID:      1,
		ContactName:  "Maria",
		Phone:        "(11) 98765-4321",
		RenderedBody: "Você ganhou R$ 10 de cashback!",
	})
	require.NoError(t, err)
	assert.NotZero(t, resp.ItemID)
	assert.NotZero(t, resp.ItemCode)

	item, err := f.queue.GetByID(context.Background(), resp.ItemID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueItemStatusPending, item.Status)
	assert.Nil(t, item.CampaignID)
	assert.Equal(t, "Você ganhou R$ 10 de cashback!", item.RenderedBody)
}

func TestEnqueueStampsInjectedClock(t *testing.T) {
	f := newFixture()
	at := time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local)
	f.freeze(at)
	f.seedStore(1, "Loja Centro")

	resp, err := f.campaignService().EnqueueSingle(context.Background(), &dto.EnqueueSingleRequest{
		StoreID:      1,
		Phone:        "5511987654321",
		RenderedBody: "oi",
	})
	require.NoError(t, err)
	assert.True(t, resp.Queued.Equal(at))

	item, err := f.queue.GetByID(context.Background(), resp.ItemID)
	require.NoError(t, err)
	assert.True(t, item.ScheduledAt.Equal(at), "scheduled_at must come from the service clock")
}

func TestEnqueueScheduledCampaign(t *testing.T) {
	f := newFixture()
	f.freeze(insideWindow)
	f.seedStore(1, "Loja Centro")
	ctx := context.Background()

	startAt := insideWindow.Add(3 * time.Hour)
	resp, err := f.campaignService().EnqueueCampaign(ctx, &dto.CreateCampaignRequest{
		StoreID:      1,
		Name:         "Agendada",
		ScheduledFor: &startAt,
		Templates:    []string{"Oi {nome}"},
		Recipients:   []dto.RecipientInput{{Phone: "5511987654321"}, {Phone: "5511987654322"}},
	})
	require.NoError(t, err)

	campaign := f.campaigns.get(resp.CampaignID)
	assert.Equal(t, model.CampaignStatusScheduled, campaign.Status)
	require.NotNil(t, campaign.ScheduledFor)
	assert.True(t, campaign.ScheduledFor.Equal(startAt))

	counts, err := f.queue.CountsByCampaign(ctx, resp.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.QueueItemStatusScheduled])
	assert.Zero(t, counts[model.QueueItemStatusPending])
}

func TestActivateReleasesScheduledRows(t *testing.T) {
	f := newFixture()
	f.freeze(insideWindow)
	f.seedStore(1, "Loja Centro")
	ctx := context.Background()

	startAt := insideWindow.Add(3 * time.Hour)
	resp, err := f.campaignService().EnqueueCampaign(ctx, &dto.CreateCampaignRequest{
		StoreID:      1,
		Name:         "Agendada",
		ScheduledFor: &startAt,
		Templates:    []string{"Oi {nome}"},
		Recipients:   []dto.RecipientInput{{Phone: "5511987654321"}},
	})
	require.NoError(t, err)

	// 提前手动激活：scheduled 行立即放行，不必等预约时刻
	require.NoError(t, f.campaignService().Activate(ctx, resp.CampaignID))
	assert.Equal(t, model.CampaignStatusRunning, f.campaigns.get(resp.CampaignID).Status)

	item, err := f.queue.GetByID(ctx, resp.ItemIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.QueueItemStatusPending, item.Status)
	assert.True(t, item.ScheduledAt.Equal(insideWindow))
}

func TestCampaignLifecycleTransitions(t *testing.T) {
	f := newFixture()
	svc := f.campaignService()
	ctx := context.Background()

	id := seedCampaign(t, f, 1)

	// draft 不能暂停或恢复
	assert.ErrorIs(t, svc.Pause(ctx, id), errors.InvalidTransition)
	assert.ErrorIs(t, svc.Resume(ctx, id), errors.InvalidTransition)

	require.NoError(t, svc.Activate(ctx, id))
	campaign := f.campaigns.get(id)
	assert.Equal(t, model.CampaignStatusRunning, campaign.Status)
	assert.NotNil(t, campaign.StartedAt)

	// 重复激活是非法迁移
	assert.ErrorIs(t, svc.Activate(ctx, id), errors.InvalidTransition)

	require.NoError(t, svc.Pause(ctx, id))
	assert.Equal(t, model.CampaignStatusPaused, f.campaigns.get(id).Status)

	require.NoError(t, svc.Resume(ctx, id))
	assert.Equal(t, model.CampaignStatusRunning, f.campaigns.get(id).Status)

	require.NoError(t, svc.Cancel(ctx, id))
	campaign = f.campaigns.get(id)
	assert.Equal(t, model.CampaignStatusCancelled, campaign.Status)
	assert.NotNil(t, campaign.FinishedAt)

	// 终态不再接受任何迁移
	assert.ErrorIs(t, svc.Activate(ctx, id), errors.InvalidTransition)
	assert.ErrorIs(t, svc.Resume(ctx, id), errors.InvalidTransition)
	assert.ErrorIs(t, svc.Cancel(ctx, id), errors.InvalidTransition)

	assert.Equal(t, []string{
		"1:activated", "1:paused", "1:resumed", "1:cancelled",
	}, f.publisher.published())
}

func TestTransitionUnknownCampaign(t *testing.T) {
	f := newFixture()
	err := f.campaignService().Activate(context.Background(), 404)
	assert.ErrorIs(t, err, errors.CampaignNotFound)
}

func TestCancelSweepsOnlyUnsentItems(t *testing.T) {
	f := newFixture()
	f.freeze(insideWindow)
	svc := f.campaignService()
	ctx := context.Background()

	id := seedCampaign(t, f, 7)
	require.NoError(t, svc.Activate(ctx, id))

	// 模拟 worker 已经送出两条
	items, err := f.queue.ListClaimable(ctx, insideWindow, 10)
	require.NoError(t, err)
	for _, item := range items[:2] {
		claimed, err := f.queue.Claim(ctx, item.ID, insideWindow)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, f.queue.MarkSent(ctx, item.ID))
	}

	require.NoError(t, svc.Cancel(ctx, id))

	counts, err := f.queue.CountsByCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.QueueItemStatusSent], "sent rows must stay sent")
	assert.Equal(t, int64(5), counts[model.QueueItemStatusCancelled])
	assert.Zero(t, counts[model.QueueItemStatusPending])
}

func TestDeleteGuards(t *testing.T) {
	f := newFixture()
	svc := f.campaignService()
	ctx := context.Background()

	id := seedCampaign(t, f, 2)

	// running 活动不可删除
	require.NoError(t, svc.Activate(ctx, id))
	assert.ErrorIs(t, svc.Delete(ctx, id), errors.NotDeletable)

	require.NoError(t, svc.Cancel(ctx, id))
	require.NoError(t, svc.Delete(ctx, id))

	_, err := svc.Stats(ctx, id)
	assert.ErrorIs(t, err, errors.CampaignNotFound)

	// 队列行也要一并消失
	counts, err := f.queue.CountsByCampaign(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture()
	svc := f.campaignService()
	id := seedCampaign(t, f, 1)

	assert.NoError(t, svc.Delete(context.Background(), id))
}

func TestDuplicate(t *testing.T) {
	f := newFixture()
	svc := f.campaignService()
	ctx := context.Background()

	id := seedCampaign(t, f, 3)
	require.NoError(t, svc.Activate(ctx, id))

	clone, err := svc.Duplicate(ctx, id)
	require.NoError(t, err)

	assert.NotEqual(t, id, clone.ID)
	assert.Equal(t, model.CampaignStatusDraft, clone.Status)
	assert.Equal(t, "Volta às aulas (cópia)", clone.Name)
	assert.Zero(t, clone.SentCount)
	assert.Zero(t, clone.FailedCount)
	assert.Zero(t, clone.TotalRecipients)
	assert.Nil(t, clone.StartedAt)

	templates, err := f.campaigns.ListTemplates(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Oi {nome}, promoção na {loja}!", templates[0].Body)

	// 复制体没有队列行
	counts, err := f.queue.CountsByCampaign(ctx, clone.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.freeze(insideWindow)
	svc := f.campaignService()
	ctx := context.Background()

	id := seedCampaign(t, f, 4)
	require.NoError(t, svc.Activate(ctx, id))

	items, err := f.queue.ListClaimable(ctx, insideWindow, 10)
	require.NoError(t, err)

	// 一条发送成功，一条跳过
	for i, item := range items[:2] {
		claimed, err := f.queue.Claim(ctx, item.ID, insideWindow)
		require.NoError(t, err)
		require.True(t, claimed)
		if i == 0 {
			require.NoError(t, f.queue.MarkSent(ctx, item.ID))
		} else {
			require.NoError(t, f.queue.MarkSkipped(ctx, item.ID, "phone not deliverable"))
		}
	}

	stats, err := svc.Stats(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, string(model.CampaignStatusRunning), stats.Status)
	assert.Equal(t, int64(4), stats.Counts["total"])
	assert.Equal(t, int64(2), stats.Counts["pending"])
	assert.Equal(t, int64(1), stats.Counts["sent"])
	assert.Equal(t, int64(1), stats.Counts["skipped"])
}
