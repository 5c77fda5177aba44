// Package cache is a redis read-through cache for resolved specialist
// schedules. Schedule data is read-mostly; cache errors degrade to the
// database silently.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studiobron/internal/schedule"
)

// ScheduleCache stores resolved day schedules with a TTL. Invalidate
// after any schedule write.
type ScheduleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewScheduleCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *ScheduleCache {
	return &ScheduleCache{client: client, ttl: ttl, logger: logger}
}

func key(specialistID int64, date time.Time) string {
	return fmt.Sprintf("schedule:%d:%s", specialistID, date.Format("2006-01-02"))
}

func (c *ScheduleCache) Get(ctx context.Context, specialistID int64, date time.Time) (schedule.DaySchedule, bool) {
	data, err := c.client.Get(ctx, key(specialistID, date)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn().Err(err).Msg("schedule cache read failed")
		}
		return schedule.DaySchedule{}, false
	}
	var ds schedule.DaySchedule
	if err := json.Unmarshal(data, &ds); err != nil {
		if c.logger != nil {
			c.logger.Warn().Err(err).Msg("schedule cache entry corrupt")
		}
		return schedule.DaySchedule{}, false
	}
	return ds, true
}

func (c *ScheduleCache) Set(ctx context.Context, specialistID int64, date time.Time, ds schedule.DaySchedule) {
	data, err := json.Marshal(ds)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(specialistID, date), data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Msg("schedule cache write failed")
	}
}

// Invalidate drops every cached day for a specialist across the next
// horizon days. Called after schedule writes.
func (c *ScheduleCache) Invalidate(ctx context.Context, specialistID int64, from time.Time, horizonDays int) {
	keys := make([]string, 0, horizonDays)
	for i := 0; i < horizonDays; i++ {
		keys = append(keys, key(specialistID, from.AddDate(0, 0, i)))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Msg("schedule cache invalidation failed")
	}
}
