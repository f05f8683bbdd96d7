// SPDX-License-Identifier: jobmesh License 1.0

package translations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	stdlibtime "time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	appCfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/time"
)

func New(ctx context.Context, applicationYAMLKey string) Client {
	var cfg config
	appCfg.MustLoadFromKey(applicationYAMLKey, &cfg)
	module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
	if cfg.LingoTranslations.Credentials.APIKey == "" {
		cfg.LingoTranslations.Credentials.APIKey = os.Getenv(fmt.Sprintf("%s_TRANSLATIONS_CLIENT_APIKEY", module))
		if cfg.LingoTranslations.Credentials.APIKey == "" {
			cfg.LingoTranslations.Credentials.APIKey = os.Getenv("TRANSLATIONS_CLIENT_APIKEY")
		}
	}
	if cfg.LingoTranslations.BaseURL == "" {
		cfg.LingoTranslations.BaseURL = os.Getenv(fmt.Sprintf("%s_TRANSLATIONS_CLIENT_BASEURL", module))
		if cfg.LingoTranslations.BaseURL == "" {
			cfg.LingoTranslations.BaseURL = os.Getenv("TRANSLATIONS_CLIENT_BASEURL")
		}
	}
	if cfg.LingoTranslations.BaseURL == "" {
		log.Panic(errors.Errorf("`lingo/translations`.baseUrl is missing for %q", applicationYAMLKey))
	}

	dict := &dictionaries{
		applicationYAMLKey: applicationYAMLKey,
		cfg:                &cfg,
		mx:                 new(sync.RWMutex),
		inflight:           make(map[Language]*inflightLoad),
		data:               make(map[Language]map[RouteKey]Segment),
	}
	go dict.startRefreshDictionariesProcess(ctx)

	return dict
}

func (d *dictionaries) Loaded(language Language) bool {
	d.mx.RLock()
	defer d.mx.RUnlock()

	return d.data[language] != nil
}

func (d *dictionaries) RouteSegment(language Language, key RouteKey) (Segment, bool) {
	d.mx.RLock()
	defer d.mx.RUnlock()
	segment, found := d.data[language][key]

	return segment, found
}

func (d *dictionaries) Routes(language Language) map[RouteKey]Segment {
	d.mx.RLock()
	defer d.mx.RUnlock()

	// Snapshots are replaced wholesale, never mutated, so its safe to hand out the map itself.
	return d.data[language]
}

//nolint:funlen // Loaded/in-flight/owner branches are one flow.
func (d *dictionaries) EnsureLoaded(ctx context.Context, language Language) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "context error")
	}
	if d.Loaded(language) {
		return nil
	}
	d.mx.Lock()
	if d.data[language] != nil {
		d.mx.Unlock()

		return nil
	}
	if load, found := d.inflight[language]; found {
		d.mx.Unlock()
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context error")
		case <-load.done:
			return errors.Wrapf(load.err, "shared dictionary load failed for language %q", language)
		}
	}
	load := &inflightLoad{done: make(chan struct{})}
	d.inflight[language] = load
	d.mx.Unlock()

	load.err = d.downloadAndSetDictionary(ctx, language)
	d.mx.Lock()
	delete(d.inflight, language)
	d.mx.Unlock()
	close(load.done)

	return errors.Wrapf(load.err, "dictionary load failed for language %q", language)
}

func (d *dictionaries) startRefreshDictionariesProcess(ctx context.Context) {
	ticker := stdlibtime.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debug("started refreshing route dictionaries")
			log.Error(errors.Wrap(d.refreshLoadedDictionaries(ctx), "failed to refreshLoadedDictionaries"),
				"elapsedMinutesSinceLatestRefresh", d.elapsedMinutesSinceLatestRefresh())
			log.Debug("finished refreshing route dictionaries")
		}
	}
}

func (d *dictionaries) elapsedMinutesSinceLatestRefresh() float64 {
	d.mx.RLock()
	defer d.mx.RUnlock()
	if d.lastRefreshAt == nil {
		return 0
	}

	return stdlibtime.Since(*d.lastRefreshAt.Time).Minutes()
}

func (d *dictionaries) refreshLoadedDictionaries(ctx context.Context) error {
	d.mx.RLock()
	languages := make([]Language, 0, len(d.data))
	for language := range d.data {
		languages = append(languages, language)
	}
	d.mx.RUnlock()

	var errs *multierror.Error
	for _, language := range languages {
		errs = multierror.Append(errs, errors.Wrapf(d.downloadAndSetDictionary(ctx, language), "failed to refresh dictionary for language %q", language))
	}

	return errs.ErrorOrNil() //nolint:wrapcheck // Not needed.
}

func (d *dictionaries) downloadAndSetDictionary(ctx context.Context, language Language) error {
	var dictionary map[RouteKey]Segment
	err := retry(ctx, func() error {
		var dErr error
		if dictionary, dErr = d.downloadDictionary(ctx, language); dErr != nil && !errors.Is(dErr, errPleaseRetry) {
			return backoff.Permanent(dErr) //nolint:wrapcheck // It's a proxy.
		}

		return dErr
	})
	if err != nil {
		return errors.Wrapf(err, "permanently failed to download dictionary for language %q", language)
	}
	d.mx.Lock()
	d.data[language] = dictionary
	d.lastRefreshAt = time.Now()
	d.mx.Unlock()

	return nil
}

//nolint:funlen // Alot of error cases.
func (d *dictionaries) downloadDictionary(ctx context.Context, language Language) (dictionary map[RouteKey]Segment, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestDeadline)
	defer cancel()
	url := fmt.Sprintf("%s/%s.json?key=%s", strings.TrimSuffix(d.cfg.LingoTranslations.BaseURL, "/"), language, d.cfg.LingoTranslations.Credentials.APIKey)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build get dictionary request for %q, language %q", d.applicationYAMLKey, language)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errPleaseRetry, "failed to get dictionary for %q, language %q: %v", d.applicationYAMLKey, language, err)
	}
	defer func() {
		err = multierror.Append(err, errors.Wrap(res.Body.Close(), "failed to close `trying to get dictionary` request body")).ErrorOrNil()
	}()
	if res.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(res.Body)
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
			return nil, errors.Wrapf(errPleaseRetry, "unexpected status code %v while trying to get dictionary for %q, language %q, response: %v",
				res.StatusCode, d.applicationYAMLKey, language, string(bodyBytes))
		}

		return nil, errors.Errorf("unexpected status code %v while trying to get dictionary for %q, language %q, response: %v",
			res.StatusCode, d.applicationYAMLKey, language, string(bodyBytes))
	}
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response body of successful `trying to get dictionary` request for %q", d.applicationYAMLKey)
	}
	flat := make(map[string]string)
	if err = json.UnmarshalContext(ctx, bodyBytes, &flat); err != nil {
		return nil, errors.Wrapf(err, "failed to json.unmarshal dictionary for %q, language %q, into %T, data: %v", d.applicationYAMLKey, language, flat, string(bodyBytes))
	}
	dictionary = make(map[RouteKey]Segment, len(flat))
	for key, segment := range flat {
		if strings.HasPrefix(key, routeKeyPrefix) {
			dictionary[key] = segment
		}
	}

	return dictionary, nil
}

func retry(ctx context.Context, op func() error) error {
	//nolint:wrapcheck // No need, its just a proxy.
	return backoff.RetryNotify(
		op,
		//nolint:gomnd // Because those are static configs.
		backoff.WithContext(&backoff.ExponentialBackOff{
			InitialInterval:     100 * stdlibtime.Millisecond,
			RandomizationFactor: 0.5,
			Multiplier:          2.5,
			MaxInterval:         stdlibtime.Second,
			MaxElapsedTime:      requestDeadline,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		}, ctx),
		func(e error, next stdlibtime.Duration) {
			log.Error(errors.Wrapf(e, "lingo/translations call failed. retrying in %v... ", next))
		})
}
