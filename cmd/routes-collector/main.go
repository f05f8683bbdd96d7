// SPDX-License-Identifier: jobmesh License 1.0

package main

import (
	"context"

	"github.com/jobmesh/lingo/analytics/collector"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/server"
)

const (
	applicationYamlKey = "routes-collector"
	swaggerRoot        = "/docs"
)

// @title			Route Analytics Collector API
// @version		latest
// @description	Collects route monitoring events and serves windowed aggregates over them.
// @BasePath		/
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log.Info("starting the route analytics collector...")
	server.New(collector.New(ctx, applicationYamlKey), applicationYamlKey, swaggerRoot).ListenAndServe(ctx, cancel)
}
