// SPDX-License-Identifier: jobmesh License 1.0

package preload

import (
	"context"
	"sync"
	stdlibtime "time"

	"github.com/pkg/errors"

	appCfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/translations"
)

func New(ctx context.Context, applicationYAMLKey string, warmer Warmer) Preloader {
	var cfg config
	appCfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	if cfg.LingoRoutingPreload.BatchSize <= 0 {
		cfg.LingoRoutingPreload.BatchSize = defaultBatchSize
	}
	if cfg.LingoRoutingPreload.IdleDelay <= 0 {
		cfg.LingoRoutingPreload.IdleDelay = defaultIdleDelay
	}
	warmingCtx, cancel := context.WithCancel(ctx)
	pre := &preloader{
		cfg:                &cfg,
		warmer:             warmer,
		cancelWarming:      cancel,
		warmingWG:          new(sync.WaitGroup),
		mx:                 new(sync.Mutex),
		marked:             make(map[string]struct{}),
		queue:              make(chan combination, queueCapacity),
		applicationYAMLKey: applicationYAMLKey,
	}
	pre.warmingWG.Add(1)
	go pre.startWarmingProcess(warmingCtx)
	pre.Warm(cfg.LingoRoutingPreload.Languages, cfg.LingoRoutingPreload.Routes)

	return pre
}

// Warm enqueues every language+key combination that was not warmed before and returns
// immediately, the background worker does the actual warming.
func (p *preloader) Warm(languages []translations.Language, keys []translations.RouteKey) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return
	}
	for _, language := range languages {
		for _, key := range keys {
			comboKey := language + "@" + key
			if _, found := p.marked[comboKey]; found {
				continue
			}
			select {
			case p.queue <- combination{language: language, key: key}:
				p.marked[comboKey] = struct{}{}
			default:
				log.Warn("route preload queue is full, skipping", "language", language, "key", key, "package", p.applicationYAMLKey)
			}
		}
	}
}

// Preloaded counts the combinations that are warmed or queued for warming. Failed
// combinations are unmarked again, so after the queue drains it counts successes only.
func (p *preloader) Preloaded() int {
	p.mx.Lock()
	defer p.mx.Unlock()

	return len(p.marked)
}

func (p *preloader) Close() error {
	p.mx.Lock()
	if p.closed {
		p.mx.Unlock()

		return nil
	}
	p.closed = true
	p.mx.Unlock()
	p.cancelWarming()
	p.warmingWG.Wait()

	return nil
}

func (p *preloader) startWarmingProcess(ctx context.Context) {
	defer p.warmingWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case combo := <-p.queue:
			p.warmBatch(ctx, p.collectBatch(combo))
			select {
			case <-ctx.Done():
				return
			case <-stdlibtime.After(p.cfg.LingoRoutingPreload.IdleDelay):
			}
		}
	}
}

func (p *preloader) collectBatch(first combination) []combination {
	batch := append(make([]combination, 0, p.cfg.LingoRoutingPreload.BatchSize), first)
	for len(batch) < p.cfg.LingoRoutingPreload.BatchSize {
		select {
		case combo := <-p.queue:
			batch = append(batch, combo)
		default:
			return batch
		}
	}

	return batch
}

func (p *preloader) warmBatch(ctx context.Context, batch []combination) {
	wg := new(sync.WaitGroup)
	wg.Add(len(batch))
	for _, combo := range batch {
		go func(combo combination) {
			defer wg.Done()
			reqCtx, cancel := context.WithTimeout(ctx, requestDeadline)
			defer cancel()
			if err := p.warmer.WarmRoute(reqCtx, combo.language, combo.key); err != nil {
				log.Error(errors.Wrapf(err, "failed to preload route %q for language %q", combo.key, combo.language), "package", p.applicationYAMLKey)
				p.unmark(combo)
			}
		}(combo)
	}
	wg.Wait()
}

func (p *preloader) unmark(combo combination) {
	p.mx.Lock()
	defer p.mx.Unlock()
	delete(p.marked, combo.language+"@"+combo.key)
}
