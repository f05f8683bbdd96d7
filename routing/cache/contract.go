// SPDX-License-Identifier: jobmesh License 1.0

package cache

import (
	"container/list"
	"io"
	"sync"
	"sync/atomic"
	stdlibtime "time"

	"github.com/redis/go-redis/v9"
)

// Public API.

type (
	Stats struct {
		Hits      uint64 `json:"hits"`
		Misses    uint64 `json:"misses"`
		Evictions uint64 `json:"evictions"`
		Size      int    `json:"size"`
	}
	Cache interface {
		io.Closer
		Get(key string) (string, bool)
		Set(key, value string)
		Len() int
		Clear()
		Stats() Stats
	}
)

// Private API.

const (
	requestDeadline = 5 * stdlibtime.Second
	scanBatchSize   = 100
)

type (
	lruEntry struct {
		key        string
		value      string
		insertedAt stdlibtime.Time
		accessedAt stdlibtime.Time
	}

	lruCache struct {
		mx             *sync.Mutex
		entries        map[string]*list.Element
		order          *list.List // Front is the most recently used entry.
		hits           uint64
		misses         uint64
		evictions      uint64
		maxSize        int
		ttl            stdlibtime.Duration
		updateAgeOnGet bool
	}

	redisCache struct {
		client         *redis.Client
		hits           atomic.Uint64
		misses         atomic.Uint64
		keyPrefix      string
		ttl            stdlibtime.Duration
		updateAgeOnGet bool
	}

	config struct {
		LingoRoutingCache struct {
			URL         string `yaml:"url" mapstructure:"url"`
			Credentials struct {
				User     string `yaml:"user" mapstructure:"user"`
				Password string `yaml:"password" mapstructure:"password"`
			} `yaml:"credentials" mapstructure:"credentials"`
		} `yaml:"lingo/routing/cache" mapstructure:"lingo/routing/cache"` //nolint:tagliatelle // Nope.
	}
)
