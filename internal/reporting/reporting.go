// FilePath: internal/reporting/reporting.go
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/itsatony/relayhub/internal/models"
	"github.com/redis/go-redis/v9"
)

// Collector is the reporting collaborator invoked on every successful
// store write. It owns historical value retention; this core only feeds
// and purges it.
type Collector interface {
	Collect(email string, dashID int, key models.PinKey, ts time.Time, value string)
	Delete(email string, dashID int, key models.PinKey)
}

// RedisCollector retains values in one capped redis stream per pin.
type RedisCollector struct {
	rdb    *redis.Client
	maxLen int64
}

// NewRedisCollector creates a collector capping every pin stream at
// maxLen entries.
func NewRedisCollector(rdb *redis.Client, maxLen int64) *RedisCollector {
	if maxLen <= 0 {
		maxLen = 10_000
	}
	return &RedisCollector{rdb: rdb, maxLen: maxLen}
}

func streamKey(email string, dashID int, key models.PinKey) string {
	return fmt.Sprintf("reporting:%s:%d:%s", email, dashID, key)
}

// CollectContext appends one value to the pin's stream.
func (c *RedisCollector) CollectContext(ctx context.Context, email string, dashID int, key models.PinKey, ts time.Time, value string) error {
	return c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(email, dashID, key),
		MaxLen: c.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"value": value,
			"ts":    ts.UnixMilli(),
		},
	}).Err()
}

// DeleteContext drops the pin's stream entirely (graph delete).
func (c *RedisCollector) DeleteContext(ctx context.Context, email string, dashID int, key models.PinKey) error {
	return c.rdb.Del(ctx, streamKey(email, dashID, key)).Err()
}

// TrimAll re-caps every reporting stream, used by the periodic worker.
func (c *RedisCollector) TrimAll(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, "reporting:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.XTrimMaxLenApprox(ctx, iter.Val(), c.maxLen, 0).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
