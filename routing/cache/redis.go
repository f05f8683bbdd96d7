// SPDX-License-Identifier: jobmesh License 1.0

package cache

import (
	"context"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	appCfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
)

//nolint:gomnd // Configs.
func MustConnectRedis(ctx context.Context, applicationYAMLKey, keyPrefix string, ttl stdlibtime.Duration, updateAgeOnGet bool) Cache {
	var cfg config
	appCfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	if cfg.LingoRoutingCache.URL == "" {
		log.Panic(errors.New("`lingo/routing/cache`.url is required"))
	}
	opts, err := redis.ParseURL(cfg.LingoRoutingCache.URL)
	log.Panic(err) //nolint:revive // That's intended.
	if opts.Username == "" {
		opts.Username = cfg.LingoRoutingCache.Credentials.User
	}
	if opts.Password == "" {
		opts.Password = cfg.LingoRoutingCache.Credentials.Password
	}
	opts.ClientName = applicationYAMLKey
	opts.MaxRetries = 25
	opts.MinRetryBackoff = 10 * stdlibtime.Millisecond
	opts.MaxRetryBackoff = 1 * stdlibtime.Second
	opts.DialTimeout = 30 * stdlibtime.Second
	opts.ReadTimeout = 30 * stdlibtime.Second
	opts.WriteTimeout = 30 * stdlibtime.Second
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)
	result, err := client.Ping(ctx).Result()
	log.Panic(err)
	if result != "PONG" {
		log.Panic(errors.Errorf("unexpected ping response: %v", result))
	}

	return NewRedisFromClient(client, keyPrefix, ttl, updateAgeOnGet)
}

func NewRedisFromClient(client *redis.Client, keyPrefix string, ttl stdlibtime.Duration, updateAgeOnGet bool) Cache {
	return &redisCache{client: client, keyPrefix: keyPrefix, ttl: ttl, updateAgeOnGet: updateAgeOnGet}
}

// Get treats any transport failure as a miss, routing must keep working without the cache.
func (c *redisCache) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), requestDeadline)
	defer cancel()
	var value string
	var err error
	if c.updateAgeOnGet && c.ttl > 0 {
		value, err = c.client.GetEx(ctx, c.keyPrefix+key, c.ttl).Result()
	} else {
		value, err = c.client.Get(ctx, c.keyPrefix+key).Result()
	}
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error(errors.Wrapf(err, "failed to get cached value for key %q", key))
		}
		c.misses.Add(1)

		return "", false
	}
	c.hits.Add(1)

	return value, true
}

func (c *redisCache) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestDeadline)
	defer cancel()
	log.Error(errors.Wrapf(c.client.Set(ctx, c.keyPrefix+key, value, c.ttl).Err(), "failed to cache value for key %q", key))
}

func (c *redisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), requestDeadline)
	defer cancel()
	var size int
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			log.Error(errors.Wrapf(err, "failed to scan cached keys with prefix %q", c.keyPrefix))

			return size
		}
		size += len(keys)
		if nextCursor == 0 {
			return size
		}
		cursor = nextCursor
	}
}

func (c *redisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), requestDeadline)
	defer cancel()
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			log.Error(errors.Wrapf(err, "failed to scan cached keys with prefix %q", c.keyPrefix))

			return
		}
		if len(keys) > 0 {
			log.Error(errors.Wrapf(c.client.Del(ctx, keys...).Err(), "failed to delete cached keys with prefix %q", c.keyPrefix))
		}
		if nextCursor == 0 {
			return
		}
		cursor = nextCursor
	}
}

func (c *redisCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Len()}
}

func (c *redisCache) Close() error {
	return errors.Wrap(c.client.Close(), "failed to close redis cache client")
}
