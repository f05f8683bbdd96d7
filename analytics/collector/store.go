// SPDX-License-Identifier: jobmesh License 1.0

package collector

import (
	"context"
	"math"
	"os"
	"strings"
	stdlibtime "time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pkg/errors"

	appcfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/time"
)

//nolint:funlen // Credential fallbacks are repetitive, but one flow.
func MustConnectStore(ctx context.Context, applicationYAMLKey string) Store {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	clickHouseCfg := &cfg.LingoAnalyticsCollector.ClickHouse
	if clickHouseCfg.Credentials.User == "" {
		module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
		clickHouseCfg.Credentials.User = os.Getenv(module + "_CLICKHOUSE_USERNAME")
		if clickHouseCfg.Credentials.User == "" {
			clickHouseCfg.Credentials.User = os.Getenv("CLICKHOUSE_USERNAME")
		}
	}
	if clickHouseCfg.Credentials.Password == "" {
		module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
		clickHouseCfg.Credentials.Password = os.Getenv(module + "_CLICKHOUSE_PASSWORD")
		if clickHouseCfg.Credentials.Password == "" {
			clickHouseCfg.Credentials.Password = os.Getenv("CLICKHOUSE_PASSWORD")
		}
	}
	if len(clickHouseCfg.Addresses) == 0 {
		log.Panic(errors.Errorf("no clickhouse addresses configured for `%v`", applicationYAMLKey))
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: clickHouseCfg.Addresses,
		Auth: clickhouse.Auth{
			Database: clickHouseCfg.DB,
			Username: clickHouseCfg.Credentials.User,
			Password: clickHouseCfg.Credentials.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "lingo-collector", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		log.Panic(errors.Wrapf(err, "failed to connect to clickhouse %v", clickHouseCfg.Addresses)) //nolint:revive // That's intended.
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectDeadline)
	defer cancel()
	if err = conn.Ping(connectCtx); err != nil {
		log.Panic(errors.Wrapf(err, "failed to ping clickhouse %v", clickHouseCfg.Addresses))
	}
	if err = conn.Exec(connectCtx, routeEventsDDL); err != nil {
		log.Panic(errors.Wrap(err, "failed to bootstrap the route_events table"))
	}

	return &routeEventStore{conn: conn}
}

func (s *routeEventStore) InsertEvents(ctx context.Context, events []*RouteEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO route_events (
			event_id, session_id, type, path, language, from_language, to_language, error, duration_ms, occurred_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare route_events batch")
	}
	for _, event := range events {
		if err = batch.Append(
			event.EventID,
			event.SessionID,
			string(event.Type),
			event.Path,
			event.Language,
			event.FromLanguage,
			event.ToLanguage,
			event.Error,
			event.DurationMS,
			storedTime(event.OccurredAt),
			storedTime(event.ReceivedAt),
		); err != nil {
			log.Error(errors.Wrapf(err, "failed to append route event %v to the batch", event.EventID))
		}
	}

	return errors.Wrapf(batch.Send(), "failed to insert %v route events", len(events))
}

func (s *routeEventStore) Metrics(ctx context.Context, start, end *time.Time) (*MetricsSummary, error) {
	query := `
		SELECT
			avgIf(duration_ms, type = 'navigation')      AS avg_navigation_ms,
			avgIf(duration_ms, type = 'language_switch') AS avg_switch_ms,
			countIf(type = 'error')                      AS errors,
			countIf(type = 'navigation')                 AS navigations,
			countIf(type = 'language_switch')            AS switches,
			count()                                      AS total
		FROM route_events
		WHERE received_at >= ? AND received_at <= ?
	`
	var avgNavigationMS, avgSwitchMS float64
	var errorCount, navigations, switches, total uint64
	if err := s.conn.QueryRow(ctx, query, storedTime(start), storedTime(end)).
		Scan(&avgNavigationMS, &avgSwitchMS, &errorCount, &navigations, &switches, &total); err != nil {
		return nil, errors.Wrap(err, "failed to query route metrics")
	}
	// avgIf returns NaN when nothing matches the condition.
	if math.IsNaN(avgNavigationMS) {
		avgNavigationMS = 0
	}
	if math.IsNaN(avgSwitchMS) {
		avgSwitchMS = 0
	}
	summary := &MetricsSummary{
		AverageNavigationTime:     avgNavigationMS,
		AverageLanguageSwitchTime: avgSwitchMS,
		TotalEvents:               total,
	}
	if requests := navigations + switches + errorCount; requests > 0 {
		summary.ErrorRate = float64(errorCount) / float64(requests)
	}

	return summary, nil
}

func (s *routeEventStore) TopPaths(ctx context.Context, start, end *time.Time, limit uint64) ([]*TopPath, error) {
	query := `
		SELECT path, count() AS navigations
		FROM route_events
		WHERE type = 'navigation' AND received_at >= ? AND received_at <= ?
		GROUP BY path
		ORDER BY navigations DESC, path ASC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, storedTime(start), storedTime(end), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query top route paths")
	}
	defer rows.Close()
	topPaths := make([]*TopPath, 0, limit)
	for rows.Next() {
		var topPath TopPath
		if err = rows.Scan(&topPath.Path, &topPath.Navigations); err != nil {
			return nil, errors.Wrap(err, "failed to scan a top route path row")
		}
		topPaths = append(topPaths, &topPath)
	}

	return topPaths, errors.Wrap(rows.Err(), "failed to iterate top route path rows")
}

func (s *routeEventStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.conn.Ping(ctx), "clickhouse ping failed")
}

func (s *routeEventStore) Close() error {
	return errors.Wrap(s.conn.Close(), "failed to close the clickhouse connection")
}

func storedTime(value *time.Time) stdlibtime.Time {
	if value == nil || value.Time == nil {
		return stdlibtime.Time{}
	}

	return *value.Time
}
