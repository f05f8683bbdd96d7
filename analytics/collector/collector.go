// SPDX-License-Identifier: jobmesh License 1.0

package collector

import (
	"context"
	"os"
	"strings"
	stdlibtime "time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appcfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/server"
	"github.com/jobmesh/lingo/time"
)

func New(ctx context.Context, applicationYAMLKey string) *Collector {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	if cfg.LingoAnalyticsCollector.Credentials.APIKey == "" {
		module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
		cfg.LingoAnalyticsCollector.Credentials.APIKey = os.Getenv(module + "_ANALYTICS_COLLECTOR_API_KEY")
		if cfg.LingoAnalyticsCollector.Credentials.APIKey == "" {
			cfg.LingoAnalyticsCollector.Credentials.APIKey = os.Getenv("ANALYTICS_COLLECTOR_API_KEY")
		}
	}

	return &Collector{store: MustConnectStore(ctx, applicationYAMLKey), cfg: &cfg, applicationYAMLKey: applicationYAMLKey}
}

func (c *Collector) Init(_ context.Context, _ context.CancelFunc) {}

func (c *Collector) Close(_ context.Context) error {
	return errors.Wrap(c.store.Close(), "failed to close the route event store")
}

func (c *Collector) CheckHealth(ctx context.Context) error {
	return errors.Wrap(c.store.Ping(ctx), "route event store is unreachable")
}

func (c *Collector) RegisterRoutes(router *server.Router) {
	router.POST("/api/analytics/routes", server.RootHandler(c.IngestRouteEvents))
	router.GET("/api/analytics/routes/metrics", server.RootHandler(c.RouteMetrics))
	router.GET("/api/analytics/routes/top", server.RootHandler(c.TopRoutePaths))
}

// IngestRouteEvents godoc
//
//	@Schemes
//	@Description	Accepts a batch of route monitoring events for storage.
//	@Tags			Analytics
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		IngestArg	true	"Request params"
//	@Success		202		{object}	StatusResp
//	@Failure		401		{object}	server.ErrorResponse	"if the api key is invalid"
//	@Failure		422		{object}	server.ErrorResponse	"if the payload does not bind"
//	@Failure		500		{object}	server.ErrorResponse
//	@Router			/api/analytics/routes [POST].
func (c *Collector) IngestRouteEvents(ctx context.Context, req *server.Request[IngestArg, StatusResp]) (*server.Response[StatusResp], *server.Response[server.ErrorResponse]) { //nolint:lll // .
	if errResp := c.authorize(req.Data.Authorization); errResp != nil {
		return nil, errResp
	}
	if len(req.Data.Analytics) == 0 {
		return server.OK(&StatusResp{Status: "accepted"}), nil
	}
	now := time.Now()
	events := make([]*RouteEvent, 0, len(req.Data.Analytics))
	for _, event := range req.Data.Analytics {
		sessionID := event.SessionID
		if sessionID == "" {
			sessionID = req.Data.SessionID
		}
		occurredAt := event.Timestamp
		if occurredAt == nil {
			occurredAt = now
		}
		events = append(events, &RouteEvent{
			OccurredAt:   occurredAt,
			ReceivedAt:   now,
			EventID:      uuid.NewString(),
			SessionID:    sessionID,
			Type:         event.Type,
			Path:         event.Path,
			Language:     event.Language,
			FromLanguage: event.FromLanguage,
			ToLanguage:   event.ToLanguage,
			Error:        event.Error,
			DurationMS:   event.DurationMS,
		})
	}
	if err := c.store.InsertEvents(ctx, events); err != nil {
		return nil, server.Unexpected(errors.Wrapf(err, "failed to store %v route events", len(events)))
	}

	return server.Accepted(&StatusResp{Status: "accepted"}), nil
}

// RouteMetrics godoc
//
//	@Schemes
//	@Description	Returns windowed aggregates over the stored route events.
//	@Tags			Analytics
//	@Produce		json
//	@Param			start	query		string	false	"window start, RFC3339, defaults to 7 days ago"
//	@Param			end		query		string	false	"window end, RFC3339, defaults to now"
//	@Success		200		{object}	MetricsSummary
//	@Failure		400		{object}	server.ErrorResponse	"if the window params are malformed"
//	@Failure		401		{object}	server.ErrorResponse	"if the api key is invalid"
//	@Failure		500		{object}	server.ErrorResponse
//	@Router			/api/analytics/routes/metrics [GET].
func (c *Collector) RouteMetrics(ctx context.Context, req *server.Request[RouteMetricsArg, MetricsSummary]) (*server.Response[MetricsSummary], *server.Response[server.ErrorResponse]) { //nolint:lll // .
	if errResp := c.authorize(req.Data.Authorization); errResp != nil {
		return nil, errResp
	}
	start, end, err := metricsWindow(req.Data.Start, req.Data.End)
	if err != nil {
		return nil, server.BadRequest(err, "INVALID_PROPERTIES")
	}
	summary, err := c.store.Metrics(ctx, start, end)
	if err != nil {
		return nil, server.Unexpected(errors.Wrap(err, "failed to aggregate route metrics"))
	}

	return server.OK(summary), nil
}

// TopRoutePaths godoc
//
//	@Schemes
//	@Description	Returns the most navigated paths in the window.
//	@Tags			Analytics
//	@Produce		json
//	@Param			start	query		string	false	"window start, RFC3339, defaults to 7 days ago"
//	@Param			end		query		string	false	"window end, RFC3339, defaults to now"
//	@Param			limit	query		uint64	false	"how many paths, defaults to 10"
//	@Success		200		{object}	TopPathsResp
//	@Failure		400		{object}	server.ErrorResponse	"if the window params are malformed"
//	@Failure		401		{object}	server.ErrorResponse	"if the api key is invalid"
//	@Failure		500		{object}	server.ErrorResponse
//	@Router			/api/analytics/routes/top [GET].
func (c *Collector) TopRoutePaths(ctx context.Context, req *server.Request[TopPathsArg, TopPathsResp]) (*server.Response[TopPathsResp], *server.Response[server.ErrorResponse]) { //nolint:lll // .
	if errResp := c.authorize(req.Data.Authorization); errResp != nil {
		return nil, errResp
	}
	start, end, err := metricsWindow(req.Data.Start, req.Data.End)
	if err != nil {
		return nil, server.BadRequest(err, "INVALID_PROPERTIES")
	}
	limit := req.Data.Limit
	if limit == 0 {
		limit = defaultTopPathsLimit
	}
	topPaths, err := c.store.TopPaths(ctx, start, end, limit)
	if err != nil {
		return nil, server.Unexpected(errors.Wrap(err, "failed to aggregate top route paths"))
	}

	return server.OK(&TopPathsResp{TopPaths: topPaths}), nil
}

func (c *Collector) authorize(authorization string) *server.Response[server.ErrorResponse] {
	expected := c.cfg.LingoAnalyticsCollector.Credentials.APIKey
	if expected == "" {
		return nil
	}
	if authorization != "Bearer "+expected {
		return server.Unauthorized(errors.New("invalid api key"))
	}

	return nil
}

func metricsWindow(startArg, endArg string) (start, end *time.Time, err error) {
	endTime := stdlibtime.Now()
	if endArg != "" {
		if endTime, err = stdlibtime.Parse(stdlibtime.RFC3339, endArg); err != nil {
			return nil, nil, errors.Wrapf(err, "invalid `end` %q, expected RFC3339", endArg)
		}
	}
	startTime := endTime.Add(-defaultMetricsWindow)
	if startArg != "" {
		if startTime, err = stdlibtime.Parse(stdlibtime.RFC3339, startArg); err != nil {
			return nil, nil, errors.Wrapf(err, "invalid `start` %q, expected RFC3339", startArg)
		}
	}
	if startTime.After(endTime) {
		return nil, nil, errors.Errorf("`start` %v is after `end` %v", startTime, endTime)
	}

	return time.New(startTime), time.New(endTime), nil
}
