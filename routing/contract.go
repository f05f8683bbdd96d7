// SPDX-License-Identifier: jobmesh License 1.0

package routing

import (
	"context"
	"io"
	"regexp"
	"sync"
	stdlibtime "time"

	"github.com/pkg/errors"

	"github.com/jobmesh/lingo/routing/cache"
	"github.com/jobmesh/lingo/translations"
)

// Public API.

type (
	FallbackBehavior string

	Client interface {
		io.Closer
		// MapPath never fails: whatever happens, the result is a navigable URL in the target language.
		MapPath(ctx context.Context, path string, target translations.Language) string
		TranslatePath(ctx context.Context, path string, target translations.Language) (string, error)
		ResolveRouteKey(ctx context.Context, path string, language translations.Language) (translations.RouteKey, error)
		RouteSegment(ctx context.Context, key translations.RouteKey, language translations.Language) (translations.Segment, error)
		WarmRoute(ctx context.Context, language translations.Language, key translations.RouteKey) error
		CacheStats() (segments, routeKeys cache.Stats)
	}
)

const (
	FallbackRedirect FallbackBehavior = "redirect"
	FallbackPreserve FallbackBehavior = "preserve"
	FallbackError    FallbackBehavior = "error"
)

// .
var (
	ErrLanguageNotSupported = errors.New("language not supported")
	ErrRouteNotFound        = errors.New("route not found")
	ErrTranslationMissing   = errors.New("translation missing")
)

// Private API.

const (
	defaultLanguage         = "en"
	defaultFallbackRouteKey = "routes.dashboard"
	defaultCacheMaxSize     = 500
	defaultCacheTTL         = 15 * stdlibtime.Minute

	memoryCacheBackend = "memory"
	redisCacheBackend  = "redis"

	segmentCacheKeyPrefix  = "lingo:routing:segments:"
	routeKeyCacheKeyPrefix = "lingo:routing:routekeys:"

	paramPrefix = ":"
)

type (
	patternRoute struct {
		regex      *regexp.Regexp
		key        translations.RouteKey
		paramCount int
		segCount   int
	}

	router struct {
		dict          translations.Client
		segmentCache  cache.Cache
		routeKeyCache cache.Cache
		patterns      *sync.Map // Segment -> *regexp.Regexp, segments are immutable so compiled patterns are shared forever.
		supported     map[translations.Language]struct{}
		cfg           *config
	}

	config struct {
		LingoRouting struct {
			DefaultLanguage    string   `yaml:"defaultLanguage" mapstructure:"defaultLanguage"`
			SupportedLanguages []string `yaml:"supportedLanguages" mapstructure:"supportedLanguages"`
			FallbackRouteKey   string   `yaml:"fallbackRouteKey" mapstructure:"fallbackRouteKey"`
			FallbackBehavior   string   `yaml:"fallbackBehavior" mapstructure:"fallbackBehavior"`
			Cache              struct {
				Backend        string              `yaml:"backend" mapstructure:"backend"`
				MaxSize        int                 `yaml:"maxSize" mapstructure:"maxSize"`
				TTL            stdlibtime.Duration `yaml:"ttl" mapstructure:"ttl"`
				UpdateAgeOnGet *bool               `yaml:"updateAgeOnGet" mapstructure:"updateAgeOnGet"`
			} `yaml:"cache" mapstructure:"cache"`
		} `yaml:"lingo/routing" mapstructure:"lingo/routing"` //nolint:tagliatelle // Nope.
	}
)
