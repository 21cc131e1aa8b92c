package notify

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultClaimTTL matches the default SQS visibility timeout.
	defaultClaimTTL     = 30 * time.Second
	defaultDeliveredTTL = 24 * time.Hour
	defaultDedupePrefix = "travelbook:notify:"
	dedupeValuePending  = "pending"
	dedupeValueSent     = "delivered"
)

// ClaimState reports what a consumer may do with a received message.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the delivery.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another delivery holds the key and has not finished.
	ClaimInFlight
	// ClaimDelivered means the message was already sent.
	ClaimDelivered
)

// Deduper tracks delivery keys so redelivered queue messages are sent once.
// Claims are short lived; only MarkDelivered records a key for the long window.
type Deduper interface {
	Claim(ctx context.Context, key string) (ClaimState, error)
	MarkDelivered(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// RedisDeduper claims keys with SET NX and a short TTL, then extends the key after a send.
type RedisDeduper struct {
	client       redis.Cmdable
	prefix       string
	claimTTL     time.Duration
	deliveredTTL time.Duration
}

// NewRedisDeduper uses the defaults for non-positive TTLs. claimTTL should not exceed
// the queue visibility timeout, so a lost release never outlives the redelivery.
func NewRedisDeduper(client redis.Cmdable, claimTTL, deliveredTTL time.Duration) *RedisDeduper {
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	if deliveredTTL <= 0 {
		deliveredTTL = defaultDeliveredTTL
	}
	return &RedisDeduper{client: client, prefix: defaultDedupePrefix, claimTTL: claimTTL, deliveredTTL: deliveredTTL}
}

func (deduper *RedisDeduper) Claim(ctx context.Context, key string) (ClaimState, error) {
	acquired, err := deduper.client.SetNX(ctx, deduper.prefix+key, dedupeValuePending, deduper.claimTTL).Result()
	if err != nil {
		return ClaimInFlight, err
	}
	if acquired {
		return ClaimAcquired, nil
	}
	value, err := deduper.client.Get(ctx, deduper.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; the next redelivery claims it.
		return ClaimInFlight, nil
	}
	if err != nil {
		return ClaimInFlight, err
	}
	if value == dedupeValueSent {
		return ClaimDelivered, nil
	}
	return ClaimInFlight, nil
}

func (deduper *RedisDeduper) MarkDelivered(ctx context.Context, key string) error {
	return deduper.client.Set(ctx, deduper.prefix+key, dedupeValueSent, deduper.deliveredTTL).Err()
}

func (deduper *RedisDeduper) Release(ctx context.Context, key string) error {
	return deduper.client.Del(ctx, deduper.prefix+key).Err()
}
