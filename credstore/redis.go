package credstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

var _ Store = (*Redis)(nil)

// Redis persists credentials in a Redis instance so a fleet of headless
// workers can share one session with the identity API.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedisClient configures a Redis client from a URL and verifies
// connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[credstore.NewRedisClient] parse url")
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "[credstore.NewRedisClient] ping")
	}
	return client, nil
}

// NewRedis creates a Redis-backed store. Keys are namespaced under
// prefix; pass "" for the default "identcli".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "identcli"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(kind Kind) string {
	return r.prefix + ":" + string(kind)
}

func (r *Redis) Get(kind Kind) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	value, err := r.client.Get(ctx, r.key(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[Redis.Get]")
	}
	return value, true, nil
}

func (r *Redis) Set(kind Kind, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(kind), value, 0).Err(); err != nil {
		return errors.Wrap(err, "[Redis.Set]")
	}
	return nil
}

func (r *Redis) SetPair(access, refresh string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(AccessToken), access, 0)
		pipe.Set(ctx, r.key(RefreshToken), refresh, 0)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "[Redis.SetPair]")
	}
	return nil
}

func (r *Redis) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(AccessToken), r.key(RefreshToken)).Err(); err != nil {
		return errors.Wrap(err, "[Redis.Clear]")
	}
	return nil
}
