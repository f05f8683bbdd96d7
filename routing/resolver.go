// SPDX-License-Identifier: jobmesh License 1.0

package routing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/terror"
	"github.com/jobmesh/lingo/translations"
)

const (
	uuidLength    = 36
	minHashLength = 12
)

// .
var (
	//nolint:gochecknoglobals // Immutable.
	groupNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func (r *router) resolveNormalized(normalized string, language translations.Language) (translations.RouteKey, error) {
	cacheKey := language + ":" + normalized
	if key, found := r.routeKeyCache.Get(cacheKey); found {
		return key, nil
	}
	routes := r.dict.Routes(language)
	var exactKey translations.RouteKey
	exactFound := false
	for key, segment := range routes {
		if hasParams(segment) {
			continue
		}
		if strings.Join(splitPath(segment), "/") == normalized && (!exactFound || key < exactKey) {
			exactKey, exactFound = key, true
		}
	}
	if exactFound {
		r.routeKeyCache.Set(cacheKey, exactKey)

		return exactKey, nil
	}
	for _, candidate := range r.patternCandidates(routes) {
		if candidate.regex.MatchString(normalized) {
			r.routeKeyCache.Set(cacheKey, candidate.key)

			return candidate.key, nil
		}
	}

	return "", terror.New(ErrRouteNotFound, map[string]any{"path": normalized, "language": language})
}

// patternCandidates orders parameterized routes most specific first, so that matching
// does not depend on dictionary iteration order: fewer parameters win, then more
// segments, then the lexicographically smallest route key.
func (r *router) patternCandidates(routes map[translations.RouteKey]translations.Segment) []*patternRoute {
	candidates := make([]*patternRoute, 0, len(routes))
	for key, segment := range routes {
		if !hasParams(segment) {
			continue
		}
		regex := r.compilePattern(segment)
		if regex == nil {
			continue
		}
		parts := splitPath(segment)
		paramCount := 0
		for _, part := range parts {
			if strings.HasPrefix(part, paramPrefix) {
				paramCount++
			}
		}
		candidates = append(candidates, &patternRoute{regex: regex, key: key, paramCount: paramCount, segCount: len(parts)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].paramCount != candidates[j].paramCount {
			return candidates[i].paramCount < candidates[j].paramCount
		}
		if candidates[i].segCount != candidates[j].segCount {
			return candidates[i].segCount > candidates[j].segCount
		}

		return candidates[i].key < candidates[j].key
	})

	return candidates
}

func (r *router) compilePattern(segment translations.Segment) *regexp.Regexp {
	if cached, found := r.patterns.Load(segment); found {
		return cached.(*regexp.Regexp) //nolint:forcetypeassert // The map holds nothing else.
	}
	parts := splitPath(segment)
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, paramPrefix) {
			if name := strings.TrimPrefix(part, paramPrefix); groupNameRegex.MatchString(name) {
				escaped = append(escaped, "(?P<"+name+">[^/]+)")
			} else {
				escaped = append(escaped, "([^/]+)")
			}

			continue
		}
		escaped = append(escaped, regexp.QuoteMeta(part))
	}
	regex, err := regexp.Compile("^" + strings.Join(escaped, "/") + "$")
	if err != nil {
		log.Error(errors.Wrapf(err, "failed to compile route pattern %q", segment))

		return nil
	}
	r.patterns.Store(segment, regex)

	return regex
}

// substitute renders the target translation with the dynamic values of the source path.
// Equal segment counts substitute positionally, anything else falls back to named
// parameters and leftover dynamic looking source segments.
func (r *router) substitute(targetSegment translations.Segment, sourceRest []string, params map[string]string) string {
	targetParts := splitPath(targetSegment)
	if len(targetParts) == len(sourceRest) {
		mapped := make([]string, len(targetParts))
		for ix, part := range targetParts {
			if strings.HasPrefix(part, paramPrefix) {
				mapped[ix] = sourceRest[ix]
			} else {
				mapped[ix] = part
			}
		}

		return strings.Join(mapped, "/")
	}
	unusedDynamic := make([]string, 0, len(sourceRest))
	for _, segment := range sourceRest {
		if !isDynamicSegment(segment) {
			continue
		}
		used := false
		for _, value := range params {
			if value == segment {
				used = true

				break
			}
		}
		if !used {
			unusedDynamic = append(unusedDynamic, segment)
		}
	}
	mapped := make([]string, len(targetParts))
	for ix, part := range targetParts {
		if !strings.HasPrefix(part, paramPrefix) {
			mapped[ix] = part

			continue
		}
		if value, found := params[strings.TrimPrefix(part, paramPrefix)]; found {
			mapped[ix] = value

			continue
		}
		if len(unusedDynamic) > 0 {
			mapped[ix] = unusedDynamic[0]
			unusedDynamic = unusedDynamic[1:]

			continue
		}
		mapped[ix] = part
	}

	return strings.Join(mapped, "/")
}

func (r *router) mapSegmentBySegment(rest []string, source, target translations.Language) (string, bool) {
	headKey, err := r.resolveNormalized(rest[0], source)
	if err != nil {
		return "", false
	}
	headSegment, err := r.cachedRouteSegment(headKey, target)
	if err != nil {
		return "", false
	}
	mapped := make([]string, 0, len(rest))
	mapped = append(mapped, headSegment)
	for _, segment := range rest[1:] {
		mapped = append(mapped, r.translateLooseSegment(segment, source, target))
	}

	return strings.Join(mapped, "/"), true
}

// translateLooseSegment keeps dynamic values opaque and translates a segment only when
// it is a whole single segment route on its own, everything else travels verbatim.
func (r *router) translateLooseSegment(segment string, source, target translations.Language) string {
	if isDynamicSegment(segment) {
		return segment
	}
	key, err := r.resolveNormalized(segment, source)
	if err != nil {
		return segment
	}
	translated, err := r.cachedRouteSegment(key, target)
	if err != nil || strings.Contains(translated, "/") || hasParams(translated) {
		return segment
	}

	return translated
}

func extractParams(regex *regexp.Regexp, normalized string) map[string]string {
	if regex == nil {
		return nil
	}
	match := regex.FindStringSubmatch(normalized)
	if match == nil {
		return nil
	}
	params := make(map[string]string, len(match)-1)
	for ix, name := range regex.SubexpNames() {
		if ix > 0 && name != "" {
			params[name] = match[ix]
		}
	}

	return params
}

func hasParams(segment translations.Segment) bool {
	for _, part := range splitPath(segment) {
		if strings.HasPrefix(part, paramPrefix) {
			return true
		}
	}

	return false
}

func isDynamicSegment(segment string) bool {
	if segment == "" {
		return false
	}
	numeric := true
	for _, char := range segment {
		if char < '0' || char > '9' {
			numeric = false

			break
		}
	}
	if numeric {
		return true
	}
	if len(segment) == uuidLength {
		if _, err := uuid.Parse(segment); err == nil {
			return true
		}
	}
	if len(segment) >= minHashLength {
		for _, char := range strings.ToLower(segment) {
			if (char < '0' || char > '9') && (char < 'a' || char > 'f') {
				return false
			}
		}

		return true
	}

	return false
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}

	return segments
}

func splitPathQueryFragment(path string) (pathOnly, query, fragment string) {
	pathOnly = path
	if ix := strings.Index(pathOnly, "#"); ix >= 0 {
		fragment = pathOnly[ix:]
		pathOnly = pathOnly[:ix]
	}
	if ix := strings.Index(pathOnly, "?"); ix >= 0 {
		query = pathOnly[ix:]
		pathOnly = pathOnly[:ix]
	}

	return pathOnly, query, fragment
}
