// SPDX-License-Identifier: jobmesh License 1.0

package preload

import (
	"context"
	"io"
	"sync"
	stdlibtime "time"

	"github.com/jobmesh/lingo/translations"
)

// Public API.

type (
	Warmer interface {
		WarmRoute(ctx context.Context, language translations.Language, key translations.RouteKey) error
	}
	Preloader interface {
		io.Closer

		Warm(languages []translations.Language, keys []translations.RouteKey)
		Preloaded() int
	}
)

// Private API.

const (
	defaultBatchSize = 3
	defaultIdleDelay = 100 * stdlibtime.Millisecond
	requestDeadline  = 30 * stdlibtime.Second
	queueCapacity    = 1024
)

type (
	combination struct {
		language translations.Language
		key      translations.RouteKey
	}
	preloader struct {
		cfg                *config
		warmer             Warmer
		cancelWarming      context.CancelFunc
		warmingWG          *sync.WaitGroup
		mx                 *sync.Mutex
		marked             map[string]struct{}
		queue              chan combination
		applicationYAMLKey string
		closed             bool
	}
	config struct {
		LingoRoutingPreload struct {
			IdleDelay stdlibtime.Duration     `yaml:"idleDelay" mapstructure:"idleDelay"`
			Languages []translations.Language `yaml:"languages" mapstructure:"languages"`
			Routes    []translations.RouteKey `yaml:"routes" mapstructure:"routes"`
			BatchSize int                     `yaml:"batchSize" mapstructure:"batchSize"`
		} `yaml:"lingo/routing/preload" mapstructure:"lingo/routing/preload"` //nolint:tagliatelle // Nope.
	}
)
