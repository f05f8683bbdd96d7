// SPDX-License-Identifier: jobmesh License 1.0

package translations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	stdlibtime "time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testApplicationYAMLKey = "self"
	testAPIKey             = "bogus-api-key"
)

// .
var (
	//nolint:gochecknoglobals // It's a stateless singleton for tests.
	client Client
	//nolint:gochecknoglobals // Shared by every test in the package.
	provider *httptest.Server
	//nolint:gochecknoglobals // Shared by every test in the package.
	providerState = struct {
		mx              sync.Mutex
		dictionaryLoads map[Language]int
	}{dictionaryLoads: make(map[Language]int)}
	//nolint:gochecknoglobals // Shared by every test in the package.
	testDictionaries = map[Language]map[string]string{
		"en": {
			"routes.dashboard": "dashboard",
			"routes.jobs":      "jobs",
			"routes.jobDetail": "jobs/:id/detail",
			"routes.profile":   "profile",
			"routes.settings":  "settings",
			"greeting.welcome": "Welcome, {{username}}!",
		},
		"es": {
			"routes.dashboard": "tablero",
			"routes.jobs":      "empleos",
			"routes.jobDetail": "empleos/:id/detail",
			"routes.profile":   "perfil",
			"routes.settings":  "ajustes",
		},
		"de": {
			"routes.dashboard": "uebersicht",
			"routes.jobs":      "stellen",
			"routes.jobDetail": "stellen/:id/detail",
		},
		"unstable": {
			"routes.dashboard": "dashboard",
		},
	}
)

func TestMain(m *testing.M) {
	provider = httptest.NewServer(http.HandlerFunc(serveDictionary))
	_ = os.Setenv("TRANSLATIONS_CLIENT_BASEURL", provider.URL)
	client = New(context.Background(), testApplicationYAMLKey)
	code := m.Run()
	provider.Close()
	os.Exit(code) //nolint:revive // .
}

func serveDictionary(writer http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("key") != testAPIKey {
		writer.WriteHeader(http.StatusUnauthorized)

		return
	}
	language := strings.TrimSuffix(strings.TrimPrefix(req.URL.Path, "/"), ".json")
	providerState.mx.Lock()
	providerState.dictionaryLoads[language]++
	loads := providerState.dictionaryLoads[language]
	providerState.mx.Unlock()
	if language == "unstable" && loads < 3 {
		writer.WriteHeader(http.StatusInternalServerError)

		return
	}
	dictionary, found := testDictionaries[language]
	if !found {
		writer.WriteHeader(http.StatusNotFound)

		return
	}
	body, err := json.Marshal(dictionary)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)

		return
	}
	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write(body)
}

func dictionaryLoads(language Language) int {
	providerState.mx.Lock()
	defer providerState.mx.Unlock()

	return providerState.dictionaryLoads[language]
}

func TestClientEnsureLoadedIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 30*stdlibtime.Second)
	defer cancel()

	require.False(t, client.Loaded("en"))
	require.NoError(t, client.EnsureLoaded(ctx, "en"))
	require.True(t, client.Loaded("en"))
	for range 10 {
		require.NoError(t, client.EnsureLoaded(ctx, "en"))
	}
	assert.Equal(t, 1, dictionaryLoads("en"))
	routes := client.Routes("en")
	assert.Len(t, routes, 5)
	assert.NotContains(t, routes, "greeting.welcome")
}

func TestClientRouteSegment(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 30*stdlibtime.Second)
	defer cancel()

	require.NoError(t, client.EnsureLoaded(ctx, "es"))
	segment, found := client.RouteSegment("es", "routes.dashboard")
	require.True(t, found)
	assert.Equal(t, "tablero", segment)
	segment, found = client.RouteSegment("es", "routes.jobDetail")
	require.True(t, found)
	assert.Equal(t, "empleos/:id/detail", segment)
	_, found = client.RouteSegment("es", "routes.bogus")
	assert.False(t, found)
}

func TestClientEnsureLoadedUnknownLanguage(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 30*stdlibtime.Second)
	defer cancel()

	require.Error(t, client.EnsureLoaded(ctx, "zz"))
	assert.False(t, client.Loaded("zz"))
	assert.Nil(t, client.Routes("zz"))
	require.Error(t, client.EnsureLoaded(ctx, "zz"))
	assert.Equal(t, 2, dictionaryLoads("zz"))
}

func TestClientEnsureLoadedRetriesServerErrors(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 30*stdlibtime.Second)
	defer cancel()

	require.NoError(t, client.EnsureLoaded(ctx, "unstable"))
	assert.True(t, client.Loaded("unstable"))
	assert.Equal(t, 3, dictionaryLoads("unstable"))
}

func TestClientConcurrentEnsureLoadedSharesOneDownload(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 30*stdlibtime.Second)
	defer cancel()

	wg := new(sync.WaitGroup)
	const concurrency = 10
	wg.Add(concurrency)
	errs := make(chan error, concurrency)
	for range concurrency {
		go func() {
			defer wg.Done()
			errs <- client.EnsureLoaded(ctx, "de")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dictionaryLoads("de"))
}
