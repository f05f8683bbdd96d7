// SPDX-License-Identifier: jobmesh License 1.0

package translations

import (
	"context"
	"sync"
	stdlibtime "time"

	"github.com/pkg/errors"

	"github.com/jobmesh/lingo/time"
)

// Public API.

type (
	Language = string
	RouteKey = string
	Segment  = string
	Client   interface {
		EnsureLoaded(ctx context.Context, language Language) error
		Loaded(language Language) bool
		RouteSegment(language Language, key RouteKey) (Segment, bool)
		Routes(language Language) map[RouteKey]Segment
	}
)

// Private API.

const (
	routeKeyPrefix  = "routes."
	refreshInterval = 5 * stdlibtime.Minute
	requestDeadline = 30 * stdlibtime.Second
)

// .
var (
	errPleaseRetry = errors.New("please retry")
)

type (
	inflightLoad struct {
		done chan struct{}
		err  error
	}

	dictionaries struct {
		cfg                *config
		mx                 *sync.RWMutex
		inflight           map[Language]*inflightLoad
		lastRefreshAt      *time.Time
		data               map[Language]map[RouteKey]Segment
		applicationYAMLKey string
	}

	config struct {
		LingoTranslations struct {
			BaseURL     string `yaml:"baseUrl" mapstructure:"baseUrl"` //nolint:tagliatelle // Nope.
			Credentials struct {
				APIKey string `yaml:"apiKey" mapstructure:"apiKey"`
			} `yaml:"credentials" mapstructure:"credentials"`
		} `yaml:"lingo/translations" mapstructure:"lingo/translations"` //nolint:tagliatelle // Nope.
	}
)
