// SPDX-License-Identifier: jobmesh License 1.0

package preload

import (
	"context"
	"sync"
	"testing"
	stdlibtime "time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmesh/lingo/translations"
)

type warmerStub struct {
	mx            sync.Mutex
	calls         map[string]int
	failuresLeft  map[string]int
	delay         stdlibtime.Duration
	concurrent    int
	maxConcurrent int
}

func newWarmerStub() *warmerStub {
	return &warmerStub{calls: map[string]int{}, failuresLeft: map[string]int{}}
}

func (w *warmerStub) WarmRoute(_ context.Context, language translations.Language, key translations.RouteKey) error {
	comboKey := language + "@" + key
	w.mx.Lock()
	w.calls[comboKey]++
	w.concurrent++
	if w.concurrent > w.maxConcurrent {
		w.maxConcurrent = w.concurrent
	}
	failing := w.failuresLeft[comboKey] > 0
	if failing {
		w.failuresLeft[comboKey]--
	}
	w.mx.Unlock()
	if w.delay > 0 {
		stdlibtime.Sleep(w.delay)
	}
	w.mx.Lock()
	w.concurrent--
	w.mx.Unlock()
	if failing {
		return errors.Errorf("failed to warm %v", comboKey)
	}

	return nil
}

func (w *warmerStub) totalCalls() int {
	w.mx.Lock()
	defer w.mx.Unlock()
	total := 0
	for _, count := range w.calls {
		total += count
	}

	return total
}

func (w *warmerStub) callsFor(comboKey string) int {
	w.mx.Lock()
	defer w.mx.Unlock()

	return w.calls[comboKey]
}

func TestPreloaderWarmsCriticalSetAtConstruction(t *testing.T) {
	t.Parallel()
	warmer := newWarmerStub()
	pre := New(context.Background(), "self", warmer)
	defer func() { require.NoError(t, pre.Close()) }()

	require.Eventually(t, func() bool { return warmer.totalCalls() == 4 }, 5*stdlibtime.Second, 10*stdlibtime.Millisecond)
	assert.Equal(t, 1, warmer.callsFor("en@routes.dashboard"))
	assert.Equal(t, 1, warmer.callsFor("es@routes.jobs"))
	assert.Equal(t, 4, pre.Preloaded())
}

func TestPreloaderDeduplicatesCombinations(t *testing.T) {
	t.Parallel()
	warmer := newWarmerStub()
	pre := New(context.Background(), "self-manual", warmer)
	defer func() { require.NoError(t, pre.Close()) }()

	for i := 0; i < 5; i++ {
		pre.Warm([]translations.Language{"en", "es"}, []translations.RouteKey{"routes.profile"})
	}
	require.Eventually(t, func() bool { return warmer.totalCalls() == 2 }, 5*stdlibtime.Second, 10*stdlibtime.Millisecond)
	stdlibtime.Sleep(50 * stdlibtime.Millisecond)
	assert.Equal(t, 2, warmer.totalCalls(), "already warmed combinations are never re-enqueued")
	assert.Equal(t, 2, pre.Preloaded())
}

func TestPreloaderRetriesFailedCombinations(t *testing.T) {
	t.Parallel()
	warmer := newWarmerStub()
	warmer.failuresLeft["en@routes.settings"] = 1
	pre := New(context.Background(), "self-manual", warmer)
	defer func() { require.NoError(t, pre.Close()) }()

	pre.Warm([]translations.Language{"en"}, []translations.RouteKey{"routes.settings"})
	require.Eventually(t, func() bool { return pre.Preloaded() == 0 }, 5*stdlibtime.Second, 10*stdlibtime.Millisecond)

	pre.Warm([]translations.Language{"en"}, []translations.RouteKey{"routes.settings"})
	require.Eventually(t, func() bool { return warmer.callsFor("en@routes.settings") == 2 }, 5*stdlibtime.Second, 10*stdlibtime.Millisecond)
	require.Eventually(t, func() bool { return pre.Preloaded() == 1 }, 5*stdlibtime.Second, 10*stdlibtime.Millisecond)
}

func TestPreloaderRespectsBatchSize(t *testing.T) {
	t.Parallel()
	warmer := newWarmerStub()
	warmer.delay = 30 * stdlibtime.Millisecond
	pre := New(context.Background(), "self-manual", warmer)
	defer func() { require.NoError(t, pre.Close()) }()

	pre.Warm(
		[]translations.Language{"en", "es", "de"},
		[]translations.RouteKey{"routes.a", "routes.b", "routes.c"},
	)
	require.Eventually(t, func() bool { return warmer.totalCalls() == 9 }, 10*stdlibtime.Second, 10*stdlibtime.Millisecond)
	warmer.mx.Lock()
	defer warmer.mx.Unlock()
	assert.LessOrEqual(t, warmer.maxConcurrent, 2, "one batch at a time, batchSize workers each")
}

func TestPreloaderCloseDropsPending(t *testing.T) {
	t.Parallel()
	warmer := newWarmerStub()
	warmer.delay = 50 * stdlibtime.Millisecond
	pre := New(context.Background(), "self-manual", warmer)

	pre.Warm(
		[]translations.Language{"en", "es", "de", "fr", "ar"},
		[]translations.RouteKey{"routes.a", "routes.b", "routes.c", "routes.d"},
	)
	stdlibtime.Sleep(60 * stdlibtime.Millisecond)
	require.NoError(t, pre.Close())
	processed := warmer.totalCalls()
	assert.Less(t, processed, 20, "pending combinations are dropped on close")

	pre.Warm([]translations.Language{"en"}, []translations.RouteKey{"routes.z"})
	stdlibtime.Sleep(50 * stdlibtime.Millisecond)
	assert.Equal(t, processed, warmer.totalCalls(), "warming after close is a no-op")
}
