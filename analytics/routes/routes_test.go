// SPDX-License-Identifier: jobmesh License 1.0

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	stdlibtime "time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobmesh/lingo/routing/monitor"
	"github.com/jobmesh/lingo/time"
)

const (
	testAPIKey = "bogus-api-key"
)

// .
var (
	//nolint:gochecknoglobals // It's a stateless singleton for tests.
	client Sink
	//nolint:gochecknoglobals // Shared by every test in the package.
	collector *httptest.Server
	//nolint:gochecknoglobals // Shared by every test in the package.
	collectorState = struct {
		mx       sync.Mutex
		requests map[string]int
		events   map[string]int
	}{requests: make(map[string]int), events: make(map[string]int)}
)

func TestMain(m *testing.M) {
	collector = httptest.NewServer(http.HandlerFunc(serveAnalytics))
	_ = os.Setenv("ANALYTICS_ROUTES_BASE_URL", collector.URL)
	client = New("self")
	code := m.Run()
	collector.Close()
	os.Exit(code) //nolint:revive // .
}

//nolint:funlen // Shared scenario dispatch for every test in the package.
func serveAnalytics(writer http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost || req.URL.Path != "/api/analytics/routes" {
		writer.WriteHeader(http.StatusNotFound)

		return
	}
	if req.Header.Get("Authorization") != "Bearer "+testAPIKey {
		writer.WriteHeader(http.StatusUnauthorized)

		return
	}
	var payload monitor.Payload
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writer.WriteHeader(http.StatusBadRequest)

		return
	}
	collectorState.mx.Lock()
	collectorState.requests[payload.SessionID]++
	collectorState.events[payload.SessionID] += len(payload.Analytics)
	attempt := collectorState.requests[payload.SessionID]
	collectorState.mx.Unlock()
	switch payload.SessionID {
	case "unstable":
		if attempt <= 2 {
			writer.WriteHeader(http.StatusInternalServerError)

			return
		}
	case "reject":
		writer.WriteHeader(http.StatusBadRequest)

		return
	case "weird":
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte(`{"status":"queued"}`))

		return
	}
	writer.WriteHeader(http.StatusAccepted)
	_, _ = writer.Write([]byte(`{"status":"accepted"}`))
}

func requestsFor(sessionID string) int {
	collectorState.mx.Lock()
	defer collectorState.mx.Unlock()

	return collectorState.requests[sessionID]
}

func testPayload(sessionID string, eventCount int) *monitor.Payload {
	events := make([]*monitor.Event, 0, eventCount)
	for i := 0; i < eventCount; i++ {
		events = append(events, &monitor.Event{
			Timestamp:  time.Now(),
			Type:       monitor.EventTypeNavigation,
			Path:       "/en/jobs",
			Language:   "en",
			SessionID:  sessionID,
			DurationMS: int64(i + 1),
		})
	}

	return &monitor.Payload{
		Metrics:   &monitor.Metrics{TotalRequests: uint64(eventCount), AverageNavigationTime: 1.5},
		SessionID: sessionID,
		Analytics: events,
	}
}

func TestSinkReportDeliversPayload(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*stdlibtime.Second)
	defer cancel()

	require.NoError(t, client.Report(ctx, testPayload("happy", 3)))
	assert.Equal(t, 1, requestsFor("happy"))
	collectorState.mx.Lock()
	defer collectorState.mx.Unlock()
	assert.Equal(t, 3, collectorState.events["happy"])
}

func TestSinkReportRetriesServerErrors(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*stdlibtime.Second)
	defer cancel()

	require.NoError(t, client.Report(ctx, testPayload("unstable", 1)))
	assert.Equal(t, 3, requestsFor("unstable"))
}

func TestSinkReportDoesNotRetryRejections(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*stdlibtime.Second)
	defer cancel()

	require.Error(t, client.Report(ctx, testPayload("reject", 1)))
	assert.Equal(t, 1, requestsFor("reject"))
}

func TestSinkReportRequiresAcceptedStatus(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*stdlibtime.Second)
	defer cancel()

	require.Error(t, client.Report(ctx, testPayload("weird", 1)))
}

func TestSinkReportSkipsEmptyPayloads(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 30*stdlibtime.Second)
	defer cancel()

	require.NoError(t, client.Report(ctx, nil))
	require.NoError(t, client.Report(ctx, &monitor.Payload{SessionID: "empty"}))
	assert.Zero(t, requestsFor("empty"))
}
