// SPDX-License-Identifier: jobmesh License 1.0

package routing

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	appCfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/routing/cache"
	"github.com/jobmesh/lingo/terror"
	"github.com/jobmesh/lingo/translations"
)

//nolint:funlen // Config defaulting is repetitive, but one flow.
func New(ctx context.Context, applicationYAMLKey string, dict translations.Client) Client {
	var cfg config
	appCfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	if cfg.LingoRouting.DefaultLanguage == "" {
		cfg.LingoRouting.DefaultLanguage = defaultLanguage
	}
	if len(cfg.LingoRouting.SupportedLanguages) == 0 {
		cfg.LingoRouting.SupportedLanguages = []string{cfg.LingoRouting.DefaultLanguage}
	}
	if cfg.LingoRouting.FallbackRouteKey == "" {
		cfg.LingoRouting.FallbackRouteKey = defaultFallbackRouteKey
	}
	if cfg.LingoRouting.FallbackBehavior == "" {
		cfg.LingoRouting.FallbackBehavior = string(FallbackRedirect)
	}
	switch FallbackBehavior(cfg.LingoRouting.FallbackBehavior) {
	case FallbackRedirect, FallbackPreserve, FallbackError:
	default:
		log.Panic(errors.Errorf("unknown `lingo/routing`.fallbackBehavior %q", cfg.LingoRouting.FallbackBehavior))
	}
	if cfg.LingoRouting.Cache.MaxSize <= 0 {
		cfg.LingoRouting.Cache.MaxSize = defaultCacheMaxSize
	}
	if cfg.LingoRouting.Cache.TTL <= 0 {
		cfg.LingoRouting.Cache.TTL = defaultCacheTTL
	}
	supported := make(map[translations.Language]struct{}, len(cfg.LingoRouting.SupportedLanguages)+1)
	supported[cfg.LingoRouting.DefaultLanguage] = struct{}{}
	for _, language := range cfg.LingoRouting.SupportedLanguages {
		supported[language] = struct{}{}
	}
	segmentCache, routeKeyCache := newCaches(ctx, applicationYAMLKey, &cfg)

	return &router{
		dict:          dict,
		segmentCache:  segmentCache,
		routeKeyCache: routeKeyCache,
		patterns:      new(sync.Map),
		supported:     supported,
		cfg:           &cfg,
	}
}

// The route key cache holds one entry per distinct visited path, the segment cache one per route.
// Visited paths churn a lot more, yet keys are smaller, so it runs at half the segment cache size.
func newCaches(ctx context.Context, applicationYAMLKey string, cfg *config) (segments, routeKeys cache.Cache) {
	maxSize := cfg.LingoRouting.Cache.MaxSize
	ttl := cfg.LingoRouting.Cache.TTL
	updateAgeOnGet := true
	if cfg.LingoRouting.Cache.UpdateAgeOnGet != nil {
		updateAgeOnGet = *cfg.LingoRouting.Cache.UpdateAgeOnGet
	}
	switch cfg.LingoRouting.Cache.Backend {
	case redisCacheBackend:
		segments = cache.MustConnectRedis(ctx, applicationYAMLKey, segmentCacheKeyPrefix, ttl, updateAgeOnGet)
		routeKeys = cache.MustConnectRedis(ctx, applicationYAMLKey, routeKeyCacheKeyPrefix, ttl, updateAgeOnGet)
	case memoryCacheBackend, "":
		segments = cache.NewLRU(maxSize, ttl, updateAgeOnGet)
		routeKeys = cache.NewLRU(maxSize/2, ttl, updateAgeOnGet) //nolint:gomnd // Half of the segment cache, see above.
	default:
		log.Panic(errors.Errorf("unknown `lingo/routing`.cache.backend %q", cfg.LingoRouting.Cache.Backend))
	}

	return segments, routeKeys
}

func (r *router) MapPath(ctx context.Context, path string, target translations.Language) (url string) {
	resolvedTarget := target
	if !r.supportedLanguage(resolvedTarget) {
		resolvedTarget = r.cfg.LingoRouting.DefaultLanguage
	}
	url = "/" + resolvedTarget
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error(errors.Errorf("recovered from a panic while mapping path %q to language %q: %v", path, target, recovered))
		}
	}()
	mapped, err := r.TranslatePath(ctx, path, resolvedTarget)
	if err != nil {
		log.Error(errors.Wrapf(err, "failed to translate path %q to language %q, redirecting to the fallback route", path, target))

		return r.fallbackURL(ctx, resolvedTarget)
	}

	return mapped
}

//nolint:funlen,gocognit,revive // The url conversion steps read best as one flow.
func (r *router) TranslatePath(ctx context.Context, path string, target translations.Language) (string, error) {
	if !r.supportedLanguage(target) {
		return "", terror.New(ErrLanguageNotSupported, map[string]any{"language": target})
	}
	if err := r.dict.EnsureLoaded(ctx, target); err != nil {
		log.Error(errors.Wrapf(err, "failed to load the %q dictionary, path mapping will degrade to fallbacks", target))
	}
	pathOnly, query, fragment := splitPathQueryFragment(path)
	segments := splitPath(pathOnly)
	source := r.cfg.LingoRouting.DefaultLanguage
	rest := segments
	if len(segments) > 0 && r.supportedLanguage(segments[0]) {
		source = segments[0]
		rest = segments[1:]
	}
	if source == target {
		return path, nil
	}
	if err := r.dict.EnsureLoaded(ctx, source); err != nil {
		log.Error(errors.Wrapf(err, "failed to load the %q dictionary, path mapping will degrade to fallbacks", source))
	}
	if len(rest) == 0 {
		return "/" + target + query + fragment, nil
	}
	normalized := strings.Join(rest, "/")
	var failure error
	if key, err := r.resolveNormalized(normalized, source); err == nil {
		targetSegment, segErr := r.cachedRouteSegment(key, target)
		if segErr == nil {
			sourceSegment, _ := r.dict.RouteSegment(source, key)

			return "/" + target + "/" + r.substitute(targetSegment, rest, extractParams(r.compilePattern(sourceSegment), normalized)) + query + fragment, nil
		}
		failure = segErr
	} else {
		failure = err
	}
	if mapped, ok := r.mapSegmentBySegment(rest, source, target); ok {
		return "/" + target + "/" + mapped + query + fragment, nil
	}
	switch FallbackBehavior(r.cfg.LingoRouting.FallbackBehavior) {
	case FallbackError:
		return "", failure
	case FallbackPreserve:
		return "/" + target + "/" + strings.Join(rest, "/") + query + fragment, nil
	default:
		return r.fallbackURL(ctx, target), nil
	}
}

func (r *router) ResolveRouteKey(ctx context.Context, path string, language translations.Language) (translations.RouteKey, error) {
	if !r.supportedLanguage(language) {
		return "", terror.New(ErrLanguageNotSupported, map[string]any{"language": language})
	}
	if err := r.dict.EnsureLoaded(ctx, language); err != nil {
		return "", errors.Wrapf(err, "failed to load the %q dictionary to resolve %q", language, path)
	}

	return r.resolveNormalized(strings.Join(splitPath(path), "/"), language)
}

func (r *router) RouteSegment(ctx context.Context, key translations.RouteKey, language translations.Language) (translations.Segment, error) {
	if !r.supportedLanguage(language) {
		return "", terror.New(ErrLanguageNotSupported, map[string]any{"language": language})
	}
	if err := r.dict.EnsureLoaded(ctx, language); err != nil {
		return "", errors.Wrapf(err, "failed to load the %q dictionary to look up %q", language, key)
	}

	return r.cachedRouteSegment(key, language)
}

func (r *router) WarmRoute(ctx context.Context, language translations.Language, key translations.RouteKey) error {
	segment, err := r.RouteSegment(ctx, key, language)
	if err != nil {
		return errors.Wrapf(err, "failed to warm route %q for language %q", key, language)
	}
	if !strings.Contains(segment, paramPrefix) {
		r.routeKeyCache.Set(language+":"+strings.Join(splitPath(segment), "/"), key)
	}

	return nil
}

func (r *router) CacheStats() (segments, routeKeys cache.Stats) {
	return r.segmentCache.Stats(), r.routeKeyCache.Stats()
}

func (r *router) Close() error {
	return multierror.Append( //nolint:wrapcheck // Not needed.
		errors.Wrap(r.segmentCache.Close(), "failed to close the segment cache"),
		errors.Wrap(r.routeKeyCache.Close(), "failed to close the route key cache"),
	).ErrorOrNil()
}

func (r *router) supportedLanguage(language translations.Language) bool {
	_, found := r.supported[language]

	return found
}

func (r *router) fallbackURL(ctx context.Context, target translations.Language) string {
	if err := r.dict.EnsureLoaded(ctx, target); err == nil {
		if segment, sErr := r.cachedRouteSegment(r.cfg.LingoRouting.FallbackRouteKey, target); sErr == nil {
			return "/" + target + "/" + segment
		}
	}

	return "/" + target
}

func (r *router) cachedRouteSegment(key translations.RouteKey, language translations.Language) (translations.Segment, error) {
	cacheKey := language + ":" + key
	if segment, found := r.segmentCache.Get(cacheKey); found {
		return segment, nil
	}
	segment, found := r.dict.RouteSegment(language, key)
	if !found {
		return "", terror.New(ErrTranslationMissing, map[string]any{"key": key, "language": language})
	}
	r.segmentCache.Set(cacheKey, segment)

	return segment, nil
}
