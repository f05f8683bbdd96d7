// SPDX-License-Identifier: jobmesh License 1.0

package monitor

import (
	"context"
	"io"
	"sync"
	stdlibtime "time"

	"github.com/jobmesh/lingo/routing/cache"
	"github.com/jobmesh/lingo/time"
	"github.com/jobmesh/lingo/translations"
)

// Public API.

type (
	EventType string

	Event struct {
		Timestamp    *time.Time            `json:"timestamp"`
		Type         EventType             `json:"type"`
		Path         string                `json:"path,omitempty"`
		Language     translations.Language `json:"language,omitempty"`
		FromLanguage translations.Language `json:"fromLanguage,omitempty"`
		ToLanguage   translations.Language `json:"toLanguage,omitempty"`
		Error        string                `json:"error,omitempty"`
		SessionID    string                `json:"sessionId"`
		DurationMS   int64                 `json:"durationMs,omitempty"`
	}
	Metrics struct {
		AverageNavigationTime     float64 `json:"averageNavigationTime"`
		AverageLanguageSwitchTime float64 `json:"averageLanguageSwitchTime"`
		ErrorRate                 float64 `json:"errorRate"`
		CacheHitRate              float64 `json:"cacheHitRate"`
		TotalRequests             uint64  `json:"totalRequests"`
	}
	Payload struct {
		Metrics   *Metrics `json:"metrics"`
		SessionID string   `json:"sessionId"`
		Analytics []*Event `json:"analytics"`
	}
	Sink interface {
		Report(ctx context.Context, payload *Payload) error
	}
	Recorder interface {
		io.Closer

		TrackNavigation(path string, language translations.Language, duration stdlibtime.Duration)
		TrackLanguageSwitch(from, to translations.Language, duration stdlibtime.Duration)
		TrackError(path string, language translations.Language, message string)
		TrackPerformance(path string, language translations.Language, duration stdlibtime.Duration)
		Metrics() *Metrics
		SessionID() string
	}
	Option func(*recorder)
)

const (
	EventTypeNavigation     EventType = "navigation"
	EventTypeLanguageSwitch EventType = "language_switch"
	EventTypeError          EventType = "error"
	EventTypePerformance    EventType = "performance"
)

// Private API.

const (
	defaultMaxEvents     = 1000
	defaultFlushInterval = 1 * stdlibtime.Minute
	requestDeadline      = 25 * stdlibtime.Second
)

type (
	recorder struct {
		cfg                *config
		sink               Sink
		cacheStats         func() (segments, routeKeys cache.Stats)
		cancelFlushing     context.CancelFunc
		flushingWG         *sync.WaitGroup
		mx                 *sync.Mutex
		events             []*Event
		oldestIx           int
		sessionID          string
		applicationYAMLKey string
	}
	config struct {
		LingoRoutingMonitor struct {
			FlushInterval stdlibtime.Duration `yaml:"flushInterval" mapstructure:"flushInterval"`
			MaxEvents     int                 `yaml:"maxEvents" mapstructure:"maxEvents"`
			Development   bool                `yaml:"development" mapstructure:"development"`
		} `yaml:"lingo/routing/monitor" mapstructure:"lingo/routing/monitor"` //nolint:tagliatelle // Nope.
	}
)
