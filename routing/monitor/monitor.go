// SPDX-License-Identifier: jobmesh License 1.0

package monitor

import (
	"context"
	"sync"
	stdlibtime "time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appCfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/routing/cache"
	"github.com/jobmesh/lingo/time"
	"github.com/jobmesh/lingo/translations"
)

func New(ctx context.Context, applicationYAMLKey string, sink Sink, opts ...Option) Recorder {
	var cfg config
	appCfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	if cfg.LingoRoutingMonitor.MaxEvents <= 0 {
		cfg.LingoRoutingMonitor.MaxEvents = defaultMaxEvents
	}
	if cfg.LingoRoutingMonitor.FlushInterval <= 0 {
		cfg.LingoRoutingMonitor.FlushInterval = defaultFlushInterval
	}
	rec := &recorder{
		cfg:                &cfg,
		sink:               sink,
		flushingWG:         new(sync.WaitGroup),
		mx:                 new(sync.Mutex),
		events:             make([]*Event, 0, cfg.LingoRoutingMonitor.MaxEvents),
		sessionID:          uuid.NewString(),
		applicationYAMLKey: applicationYAMLKey,
	}
	for _, opt := range opts {
		opt(rec)
	}
	if rec.flushingEnabled() {
		flushingCtx, cancel := context.WithCancel(ctx)
		rec.cancelFlushing = cancel
		rec.flushingWG.Add(1)
		go rec.startFlushingProcess(flushingCtx)
	}

	return rec
}

func WithCacheStats(fn func() (segments, routeKeys cache.Stats)) Option {
	return func(rec *recorder) {
		rec.cacheStats = fn
	}
}

func (r *recorder) TrackNavigation(path string, language translations.Language, duration stdlibtime.Duration) {
	r.record(&Event{
		Timestamp:  time.Now(),
		Type:       EventTypeNavigation,
		Path:       path,
		Language:   language,
		SessionID:  r.sessionID,
		DurationMS: duration.Milliseconds(),
	})
}

func (r *recorder) TrackLanguageSwitch(from, to translations.Language, duration stdlibtime.Duration) {
	r.record(&Event{
		Timestamp:    time.Now(),
		Type:         EventTypeLanguageSwitch,
		FromLanguage: from,
		ToLanguage:   to,
		SessionID:    r.sessionID,
		DurationMS:   duration.Milliseconds(),
	})
}

func (r *recorder) TrackError(path string, language translations.Language, message string) {
	r.record(&Event{
		Timestamp: time.Now(),
		Type:      EventTypeError,
		Path:      path,
		Language:  language,
		Error:     message,
		SessionID: r.sessionID,
	})
}

func (r *recorder) TrackPerformance(path string, language translations.Language, duration stdlibtime.Duration) {
	r.record(&Event{
		Timestamp:  time.Now(),
		Type:       EventTypePerformance,
		Path:       path,
		Language:   language,
		SessionID:  r.sessionID,
		DurationMS: duration.Milliseconds(),
	})
}

func (r *recorder) Metrics() *Metrics {
	r.mx.Lock()
	defer r.mx.Unlock()

	return r.metrics()
}

func (r *recorder) SessionID() string {
	return r.sessionID
}

func (r *recorder) Close() error {
	if r.cancelFlushing != nil {
		r.cancelFlushing()
		r.flushingWG.Wait()
	}
	if r.flushingEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), requestDeadline)
		defer cancel()
		r.flush(ctx)
	}

	return nil
}

func (r *recorder) record(event *Event) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(r.events) < cap(r.events) {
		r.events = append(r.events, event)

		return
	}
	r.events[r.oldestIx] = event
	r.oldestIx = (r.oldestIx + 1) % cap(r.events)
}

func (r *recorder) startFlushingProcess(ctx context.Context) {
	defer r.flushingWG.Done()
	ticker := stdlibtime.NewTicker(r.cfg.LingoRoutingMonitor.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(ctx, requestDeadline)
			r.flush(reqCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// flush reports a snapshot of the buffered events and clears the buffer. Reporting happens
// outside the lock, so tracking never waits on the sink. Events of a failed report are gone,
// route monitoring is fire and forget.
func (r *recorder) flush(ctx context.Context) {
	payload := r.snapshotAndClear()
	if payload == nil {
		return
	}
	if err := r.sink.Report(ctx, payload); err != nil {
		log.Error(errors.Wrapf(err, "failed to report %v buffered route events", len(payload.Analytics)), "package", r.applicationYAMLKey)
	}
}

func (r *recorder) snapshotAndClear() *Payload {
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	events := make([]*Event, 0, len(r.events))
	events = append(events, r.events[r.oldestIx:]...)
	events = append(events, r.events[:r.oldestIx]...)
	metrics := r.metrics()
	r.events = r.events[:0]
	r.oldestIx = 0

	return &Payload{Metrics: metrics, SessionID: r.sessionID, Analytics: events}
}

func (r *recorder) metrics() *Metrics {
	var navigationTotal, switchTotal float64
	var navigations, switches, errCount uint64
	for _, event := range r.events {
		switch event.Type {
		case EventTypeNavigation:
			navigations++
			navigationTotal += float64(event.DurationMS)
		case EventTypeLanguageSwitch:
			switches++
			switchTotal += float64(event.DurationMS)
		case EventTypeError:
			errCount++
		case EventTypePerformance:
		}
	}
	metrics := &Metrics{TotalRequests: navigations + switches}
	if navigations > 0 {
		metrics.AverageNavigationTime = navigationTotal / float64(navigations)
	}
	if switches > 0 {
		metrics.AverageLanguageSwitchTime = switchTotal / float64(switches)
	}
	if total := navigations + switches + errCount; total > 0 {
		metrics.ErrorRate = float64(errCount) / float64(total)
	}
	if r.cacheStats != nil {
		segments, routeKeys := r.cacheStats()
		hits := segments.Hits + routeKeys.Hits
		if requests := hits + segments.Misses + routeKeys.Misses; requests > 0 {
			metrics.CacheHitRate = float64(hits) / float64(requests)
		}
	}

	return metrics
}

func (r *recorder) flushingEnabled() bool {
	return r.sink != nil && !r.cfg.LingoRoutingMonitor.Development
}
