// SPDX-License-Identifier: jobmesh License 1.0

package routes

import (
	stdlibtime "time"

	"github.com/jobmesh/lingo/routing/monitor"
)

// Public API.

type (
	// Sink ships monitor payloads to the route analytics collector.
	Sink = monitor.Sink
)

// Private API.

const (
	requestDeadline = 25 * stdlibtime.Second
)

type (
	sink struct {
		cfg *config
	}
	config struct {
		LingoAnalyticsRoutes struct {
			Credentials struct {
				APIKey string `yaml:"apiKey"`
			} `yaml:"credentials" mapstructure:"credentials"`
			BaseURL string `yaml:"baseUrl" mapstructure:"baseUrl"`
		} `yaml:"lingo/analytics/routes" mapstructure:"lingo/analytics/routes"` //nolint:tagliatelle // Nope.
	}
)
