package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// AcquireChallengeGap takes a short per-email lock so OTP codes cannot
// be requested back to back. Returns false while the gap is held.
func (c *Cache) AcquireChallengeGap(ctx context.Context, email string, gap time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "otpgap:"+email, 1, gap)
	return res.Val(), res.Err()
}
