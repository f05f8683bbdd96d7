// SPDX-License-Identifier: jobmesh License 1.0

package collector

import (
	"context"
	"io"
	stdlibtime "time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/jobmesh/lingo/routing/monitor"
	"github.com/jobmesh/lingo/time"
	"github.com/jobmesh/lingo/translations"
)

// Public API.

type (
	RouteEvent struct {
		OccurredAt   *time.Time            `json:"occurredAt"`
		ReceivedAt   *time.Time            `json:"receivedAt"`
		EventID      string                `json:"eventId"`
		SessionID    string                `json:"sessionId"`
		Type         monitor.EventType     `json:"type"`
		Path         string                `json:"path,omitempty"`
		Language     translations.Language `json:"language,omitempty"`
		FromLanguage translations.Language `json:"fromLanguage,omitempty"`
		ToLanguage   translations.Language `json:"toLanguage,omitempty"`
		Error        string                `json:"error,omitempty"`
		DurationMS   int64                 `json:"durationMs,omitempty"`
	}
	MetricsSummary struct {
		AverageNavigationTime     float64 `json:"averageNavigationTime"`
		AverageLanguageSwitchTime float64 `json:"averageLanguageSwitchTime"`
		ErrorRate                 float64 `json:"errorRate"`
		TotalEvents               uint64  `json:"totalEvents"`
	}
	TopPath struct {
		Path        string `json:"path"`
		Navigations uint64 `json:"navigations"`
	}
	Store interface {
		io.Closer

		InsertEvents(ctx context.Context, events []*RouteEvent) error
		Metrics(ctx context.Context, start, end *time.Time) (*MetricsSummary, error)
		TopPaths(ctx context.Context, start, end *time.Time, limit uint64) ([]*TopPath, error)
		Ping(ctx context.Context) error
	}
	Collector struct {
		store              Store
		cfg                *config
		applicationYAMLKey string
	}

	IngestArg struct {
		Metrics       *monitor.Metrics `json:"metrics"`
		Authorization string           `header:"Authorization" json:"-" swaggerignore:"true"`
		SessionID     string           `json:"sessionId"`
		Analytics     []*monitor.Event `json:"analytics"`
	}
	StatusResp struct {
		Status string `json:"status" example:"accepted"`
	}
	RouteMetricsArg struct {
		Authorization string `header:"Authorization" json:"-" swaggerignore:"true"`
		Start         string `form:"start" example:"2026-01-01T00:00:00Z"`
		End           string `form:"end" example:"2026-01-08T00:00:00Z"`
	}
	TopPathsArg struct {
		Authorization string `header:"Authorization" json:"-" swaggerignore:"true"`
		Start         string `form:"start" example:"2026-01-01T00:00:00Z"`
		End           string `form:"end" example:"2026-01-08T00:00:00Z"`
		Limit         uint64 `form:"limit" example:"10"`
	}
	TopPathsResp struct {
		TopPaths []*TopPath `json:"topPaths"`
	}
)

// Private API.

const (
	defaultMetricsWindow = 7 * 24 * stdlibtime.Hour
	defaultTopPathsLimit = 10
	connectDeadline      = 10 * stdlibtime.Second
	dialTimeout          = 5 * stdlibtime.Second

	routeEventsDDL = `
CREATE TABLE IF NOT EXISTS route_events (
	event_id      String,
	session_id    String,
	type          LowCardinality(String),
	path          String,
	language      LowCardinality(String),
	from_language LowCardinality(String),
	to_language   LowCardinality(String),
	error         String,
	duration_ms   Int64,
	occurred_at   DateTime64(3),
	received_at   DateTime64(3)
) ENGINE = MergeTree
ORDER BY (received_at, session_id)`
)

type (
	routeEventStore struct {
		conn clickhouse.Conn
	}
	config struct {
		LingoAnalyticsCollector struct {
			ClickHouse struct {
				Credentials struct {
					User     string `yaml:"user"`
					Password string `yaml:"password"`
				} `yaml:"credentials" mapstructure:"credentials"`
				DB        string   `yaml:"db"`
				Addresses []string `yaml:"addresses"`
			} `yaml:"clickhouse" mapstructure:"clickhouse"`
			Credentials struct {
				APIKey string `yaml:"apiKey"`
			} `yaml:"credentials" mapstructure:"credentials"`
		} `yaml:"lingo/analytics/collector" mapstructure:"lingo/analytics/collector"` //nolint:tagliatelle // Nope.
	}
)
