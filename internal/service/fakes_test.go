package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LojaZap/internal/model"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/whatsapp"
	"LojaZap/utils"
)

// 内存版仓储实现，互斥锁保证与数据库条件更新等价的原子语义。

type fakeQueueRepo struct {
	mu     sync.Mutex
	items  map[int64]*model.MessageQueueItem
	nextID int64

	// 活动仓储回指，选取时用来复刻 SQL 侧的活动状态/窗口过滤
	campaigns *fakeCampaignRepo
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{items: make(map[int64]*model.MessageQueueItem)}
}

func (r *fakeQueueRepo) insert(item *model.MessageQueueItem) {
	r.nextID++
	item.ID = r.nextID
	clone := *item
	r.items[item.ID] = &clone
}

func (r *fakeQueueRepo) GetByID(_ context.Context, id int64) (*model.MessageQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, errors.QueueItemNotFound
	}
	clone := *item
	return &clone, nil
}

func (r *fakeQueueRepo) Create(_ context.Context, item *model.MessageQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(item)
	return nil
}

func (r *fakeQueueRepo) ListClaimable(_ context.Context, now time.Time, limit int) ([]*model.MessageQueueItem, error) {
	// 先快照活动的可发性，再锁队列，与真实实现的 JOIN 过滤等价
	claimableCampaign := make(map[int64]bool)
	if r.campaigns != nil {
		r.campaigns.mu.Lock()
		for id, c := range r.campaigns.campaigns {
			claimableCampaign[id] = c.Status == model.CampaignStatusRunning &&
				utils.WithinWindow(now, c.StartHour, c.EndHour)
		}
		r.campaigns.mu.Unlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*model.MessageQueueItem
	for id := int64(1); id <= r.nextID && len(result) < limit; id++ {
		item, ok := r.items[id]
		if !ok {
			continue
		}
		if item.Status != model.QueueItemStatusPending || item.ScheduledAt.After(now) {
			continue
		}
		if item.CampaignID != nil && !claimableCampaign[*item.CampaignID] {
			continue
		}
		clone := *item
		result = append(result, &clone)
	}
	return result, nil
}

func (r *fakeQueueRepo) Claim(_ context.Context, id int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != model.QueueItemStatusPending {
		return false, nil
	}
	item.Status = model.QueueItemStatusProcessing
	item.Attempts++
	at := now
	item.LastAttemptAt = &at
	return true, nil
}

func (r *fakeQueueRepo) MarkSent(_ context.Context, id int64) error {
	return r.finish(id, model.QueueItemStatusSent, "")
}

func (r *fakeQueueRepo) MarkFailed(_ context.Context, id int64, reason string) error {
	return r.finish(id, model.QueueItemStatusFailed, reason)
}

func (r *fakeQueueRepo) MarkSkipped(_ context.Context, id int64, reason string) error {
	return r.finish(id, model.QueueItemStatusSkipped, reason)
}

func (r *fakeQueueRepo) finish(id int64, to model.QueueItemStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != model.QueueItemStatusProcessing {
		return nil
	}
	item.Status = to
	if reason != "" {
		item.ErrorMessage = reason
	}
	return nil
}

func (r *fakeQueueRepo) Requeue(_ context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != model.QueueItemStatusProcessing {
		return nil
	}
	item.Status = model.QueueItemStatusPending
	item.ErrorMessage = reason
	return nil
}

func (r *fakeQueueRepo) ReleaseByCampaign(_ context.Context, campaignID int64, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released int64
	for _, item := range r.items {
		if item.CampaignID == nil || *item.CampaignID != campaignID {
			continue
		}
		if item.Status == model.QueueItemStatusScheduled {
			item.Status = model.QueueItemStatusPending
			item.ScheduledAt = now
			released++
		}
	}
	return released, nil
}

func (r *fakeQueueRepo) CancelByCampaign(_ context.Context, campaignID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var swept int64
	for _, item := range r.items {
		if item.CampaignID == nil || *item.CampaignID != campaignID {
			continue
		}
		if item.Status == model.QueueItemStatusPending || item.Status == model.QueueItemStatusScheduled {
			item.Status = model.QueueItemStatusCancelled
			swept++
		}
	}
	return swept, nil
}

func (r *fakeQueueRepo) CountsByCampaign(_ context.Context, campaignID int64) (map[model.QueueItemStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[model.QueueItemStatus]int64)
	for _, item := range r.items {
		if item.CampaignID != nil && *item.CampaignID == campaignID {
			counts[item.Status]++
		}
	}
	return counts, nil
}

func (r *fakeQueueRepo) CountNonTerminalByCampaign(_ context.Context, campaignID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, item := range r.items {
		if item.CampaignID != nil && *item.CampaignID == campaignID && !item.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

// status 返回指定行的当前状态，测试断言用
func (r *fakeQueueRepo) status(id int64) model.QueueItemStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].Status
}

func (r *fakeQueueRepo) attempts(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].Attempts
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
	templates map[int64][]*model.CampaignTemplate
	queue     *fakeQueueRepo
	nextID    int64
}

func newFakeCampaignRepo(queue *fakeQueueRepo) *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[int64]*model.Campaign),
		templates: make(map[int64][]*model.CampaignTemplate),
		queue:     queue,
	}
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, errors.CampaignNotFound
	}
	clone := *campaign
	return &clone, nil
}

func (r *fakeCampaignRepo) Create(_ context.Context, campaign *model.Campaign, templates []*model.CampaignTemplate, items []*model.MessageQueueItem) error {
	r.mu.Lock()
	r.nextID++
	campaign.ID = r.nextID
	clone := *campaign
	r.campaigns[campaign.ID] = &clone

	for _, tpl := range templates {
		tpl.CampaignID = campaign.ID
		tplClone := *tpl
		r.templates[campaign.ID] = append(r.templates[campaign.ID], &tplClone)
	}
	r.mu.Unlock()

	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()
	for _, item := range items {
		item.CampaignID = &campaign.ID
		r.queue.insert(item)
	}
	return nil
}

func (r *fakeCampaignRepo) UpdateStatusGuarded(_ context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus, extra map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return false, nil
	}

	matched := false
	for _, status := range from {
		if campaign.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	campaign.Status = to
	for key, value := range extra {
		at, ok := value.(time.Time)
		if !ok {
			continue
		}
		switch key {
		case "started_at":
			campaign.StartedAt = &at
		case "finished_at":
			campaign.FinishedAt = &at
		}
	}
	return true, nil
}

func (r *fakeCampaignRepo) IncrementSent(_ context.Context, id int64, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if campaign, ok := r.campaigns[id]; ok {
		campaign.SentCount++
		at := sentAt
		campaign.LastSentAt = &at
	}
	return nil
}

func (r *fakeCampaignRepo) IncrementFailed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if campaign, ok := r.campaigns[id]; ok {
		campaign.FailedCount++
	}
	return nil
}

func (r *fakeCampaignRepo) ListTemplates(_ context.Context, campaignID int64) ([]*model.CampaignTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.templates[campaignID], nil
}

func (r *fakeCampaignRepo) ListDueScheduled(_ context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*model.Campaign
	for id := int64(1); id <= r.nextID && len(due) < limit; id++ {
		campaign, ok := r.campaigns[id]
		if !ok {
			continue
		}
		if campaign.Status == model.CampaignStatusScheduled &&
			campaign.ScheduledFor != nil && !campaign.ScheduledFor.After(now) {
			clone := *campaign
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (r *fakeCampaignRepo) CountSentSince(_ context.Context, campaignID int64, since time.Time) (int64, error) {
	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()

	var count int64
	for _, item := range r.queue.items {
		if item.CampaignID == nil || *item.CampaignID != campaignID {
			continue
		}
		if item.Status == model.QueueItemStatusSent && item.LastAttemptAt != nil && !item.LastAttemptAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeCampaignRepo) DeleteCascade(_ context.Context, id int64) error {
	r.mu.Lock()
	delete(r.campaigns, id)
	delete(r.templates, id)
	r.mu.Unlock()

	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()
	for itemID, item := range r.queue.items {
		if item.CampaignID != nil && *item.CampaignID == id {
			delete(r.queue.items, itemID)
		}
	}
	return nil
}

func (r *fakeCampaignRepo) get(id int64) *model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *r.campaigns[id]
	return &clone
}

type fakeStoreRepo struct {
	mu     sync.Mutex
	stores map[int64]*model.Store
}

func newFakeStoreRepo() *fakeStoreRepo {
	return &fakeStoreRepo{stores: make(map[int64]*model.Store)}
}

func (r *fakeStoreRepo) add(store *model.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[store.ID] = store
}

func (r *fakeStoreRepo) GetByID(_ context.Context, id int64) (*model.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[id]
	if !ok {
		return nil, errors.StoreNotFound
	}
	clone := *store
	return &clone, nil
}

type fakeCredentialRepo struct {
	mu      sync.Mutex
	byStore map[int64]*model.WhatsAppCredential
	global  *model.WhatsAppCredential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{byStore: make(map[int64]*model.WhatsAppCredential)}
}

func (r *fakeCredentialRepo) GetByStore(_ context.Context, storeID int64) (*model.WhatsAppCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byStore[storeID]
	if !ok || cred.Status != model.CredentialStatusConnected {
		return nil, nil
	}
	return cred, nil
}

func (r *fakeCredentialRepo) GetGlobal(_ context.Context) (*model.WhatsAppCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.global == nil || r.global.Status != model.CredentialStatusConnected {
		return nil, nil
	}
	return r.global, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) PublishCampaignEvent(_ context.Context, event string, campaign *model.Campaign) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, fmt.Sprintf("%d:%s", campaign.ID, event))
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type fakeDaily struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeDaily() *fakeDaily {
	return &fakeDaily{counts: make(map[string]int64)}
}

func (d *fakeDaily) key(campaignID int64, date string) string {
	return fmt.Sprintf("%d:%s", campaignID, date)
}

func (d *fakeDaily) Get(_ context.Context, campaignID int64, date string) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	count, ok := d.counts[d.key(campaignID, date)]
	return count, ok, nil
}

func (d *fakeDaily) Incr(_ context.Context, campaignID int64, date string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[d.key(campaignID, date)]++
	return nil
}

func (d *fakeDaily) Seed(_ context.Context, campaignID int64, date string, count int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.counts[d.key(campaignID, date)]; !ok {
		d.counts[d.key(campaignID, date)] = count
	}
	return nil
}

// fixture 一组互相接好的内存协作方。所有服务共用 clock，
// 测试冻结它之后，入队时间戳与分发判定落在同一时间线上。
type fixture struct {
	queue     *fakeQueueRepo
	campaigns *fakeCampaignRepo
	stores    *fakeStoreRepo
	creds     *fakeCredentialRepo
	publisher *fakePublisher
	daily     *fakeDaily
	sender    *whatsapp.MockClient

	clock func() time.Time
}

func newFixture() *fixture {
	queue := newFakeQueueRepo()
	campaigns := newFakeCampaignRepo(queue)
	queue.campaigns = campaigns
	return &fixture{
		queue:     queue,
		campaigns: campaigns,
		stores:    newFakeStoreRepo(),
		creds:     newFakeCredentialRepo(),
		publisher: &fakePublisher{},
		daily:     newFakeDaily(),
		sender:    whatsapp.NewMockClient(),
		clock:     time.Now,
	}
}

// freeze 把 fixture 的时钟钉在给定时刻，之后可再次调用推进时间
func (f *fixture) freeze(at time.Time) {
	f.clock = func() time.Time { return at }
}

func (f *fixture) campaignService() *CampaignService {
	svc := NewCampaignService(f.campaigns, f.queue, f.stores, f.publisher)
	svc.now = func() time.Time { return f.clock() }
	return svc
}

func (f *fixture) credentialService() *CredentialService {
	return NewCredentialService(f.stores, f.creds, "", "")
}

func (f *fixture) credentialServiceWithEnv(siteSlug, customerID string) *CredentialService {
	return NewCredentialService(f.stores, f.creds, siteSlug, customerID)
}

func (f *fixture) dispatchService() *DispatchService {
	svc := NewDispatchService(f.queue, f.campaigns, f.stores,
		f.credentialServiceWithEnv("fallback-site", "fallback-customer"),
		f.sender, f.publisher, f.daily, 5*time.Second)
	svc.now = func() time.Time { return f.clock() }
	return svc
}

// seedStore 建一家开启消息功能的门店
func (f *fixture) seedStore(id int64, name string) *model.Store {
	store := &model.Store{Name: name, Slug: fmt.Sprintf("store-%d", id), MessagingEnabled: true}
	store.ID = id
	f.stores.add(store)
	return store
}
