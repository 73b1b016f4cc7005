package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"LojaZap/storage/redis"
)

const (
	campaignDailyPrefix = "campaign:daily"

	dailyTTL = 48 * time.Hour
)

func dailyKey(campaignID int64, date string) string {
	return redis.Key(campaignDailyPrefix, fmt.Sprintf("%d", campaignID), date)
}

// GetDailySent 读取活动在指定日期已发送的条数
// 返回 found=false 表示计数器不存在（需要从数据库回填）
func GetDailySent(ctx context.Context, campaignID int64, date string) (count int64, found bool, err error) {
	count, err = redis.Client().Get(ctx, dailyKey(campaignID, date)).Int64()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get daily sent counter: %w", err)
	}
	return count, true, nil
}

// IncrDailySent 活动当日发送计数 +1
func IncrDailySent(ctx context.Context, campaignID int64, date string) error {
	key := dailyKey(campaignID, date)

	pipe := redis.Client().TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dailyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment daily sent counter: %w", err)
	}
	return nil
}

// SeedDailySent 用数据库统计值回填计数器（仅当 key 不存在时生效）
func SeedDailySent(ctx context.Context, campaignID int64, date string, count int64) error {
	key := dailyKey(campaignID, date)
	if err := redis.Client().SetNX(ctx, key, count, dailyTTL).Err(); err != nil {
		return fmt.Errorf("failed to seed daily sent counter: %w", err)
	}
	return nil
}
