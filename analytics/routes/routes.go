// SPDX-License-Identifier: jobmesh License 1.0

package routes

import (
	"context"
	"net/http"
	"os"
	"strings"
	stdlibtime "time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"

	appcfg "github.com/jobmesh/lingo/config"
	"github.com/jobmesh/lingo/log"
	"github.com/jobmesh/lingo/routing/monitor"
)

func init() { //nolint:gochecknoinits // It's the only way to tweak the client.
	req.DefaultClient().SetJsonMarshal(json.Marshal)
	req.DefaultClient().SetJsonUnmarshal(json.Unmarshal)
	req.DefaultClient().GetClient().Timeout = requestDeadline
}

func New(applicationYAMLKey string) Sink {
	var cfg config
	appcfg.MustLoadFromKey(applicationYAMLKey, &cfg)

	if cfg.LingoAnalyticsRoutes.BaseURL == "" {
		module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
		cfg.LingoAnalyticsRoutes.BaseURL = os.Getenv(module + "_ANALYTICS_ROUTES_BASE_URL")
		if cfg.LingoAnalyticsRoutes.BaseURL == "" {
			cfg.LingoAnalyticsRoutes.BaseURL = os.Getenv("ANALYTICS_ROUTES_BASE_URL")
		}
	}
	if cfg.LingoAnalyticsRoutes.Credentials.APIKey == "" {
		module := strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(applicationYAMLKey, "-", "_"), "/", "_"))
		cfg.LingoAnalyticsRoutes.Credentials.APIKey = os.Getenv(module + "_ANALYTICS_ROUTES_API_KEY")
		if cfg.LingoAnalyticsRoutes.Credentials.APIKey == "" {
			cfg.LingoAnalyticsRoutes.Credentials.APIKey = os.Getenv("ANALYTICS_ROUTES_API_KEY")
		}
	}
	if cfg.LingoAnalyticsRoutes.BaseURL == "" {
		log.Panic(errors.Errorf("no baseUrl configured for `%v` analytics/routes", applicationYAMLKey))
	}

	return &sink{cfg: &cfg}
}

func (s *sink) Report(ctx context.Context, payload *monitor.Payload) error {
	if payload == nil || (payload.Metrics == nil && len(payload.Analytics) == 0) {
		return nil
	}
	url := s.cfg.LingoAnalyticsRoutes.BaseURL + "/api/analytics/routes"

	return errors.Wrapf(s.post(ctx, url, payload), "unable to send post request to `%v`, with %v events", url, len(payload.Analytics))
}

func (s *sink) post(ctx context.Context, url string, payload *monitor.Payload) error {
	resp, err := s.buildHTTPRequest(ctx).SetBodyJsonMarshal(payload).Post(url)
	if err != nil || resp.IsErrorState() {
		if err == nil {
			respBody, pErr := resp.ToString()
			if pErr != nil {
				err = errors.Wrapf(pErr, "analytics/routes post `%v` failed, [1]unable to read response body", url)
			} else {
				err = errors.Errorf("analytics/routes post `%v` failed, response: %v", url, respBody)
			}
		}

		return errors.Wrapf(err, "analytics/routes post `%v` failed", url)
	}
	respBody, err := resp.ToString()
	if err != nil {
		return errors.Wrapf(err, "analytics/routes post `%v` failed, [2]unable to read response body", url)
	}
	var rep struct {
		Status string `json:"status"`
	}
	if err = json.Unmarshal([]byte(respBody), &rep); err != nil {
		return errors.Wrapf(err, "unmarshalling response for analytics/routes post `%v` failed, statusCode:%v, response: %v", url, resp.GetStatusCode(), respBody)
	}
	if rep.Status != "accepted" {
		return errors.Errorf("analytics/routes post `%v` failed, response: %v", url, respBody)
	}

	return nil
}

//nolint:mnd,gomnd // Static config.
func (s *sink) buildHTTPRequest(ctx context.Context) *req.Request {
	request := req.
		SetContext(ctx).
		SetRetryBackoffInterval(10*stdlibtime.Millisecond, 1*stdlibtime.Second).
		SetRetryHook(func(resp *req.Response, err error) {
			switch { //nolint:revive // .
			case err != nil:
				log.Error(errors.Wrapf(err, "analytics/routes request failed, retrying... "))
			case resp.GetStatusCode() == http.StatusTooManyRequests:
				log.Error(errors.New("rate limit for analytics/routes request reached, retrying... "))
			case resp.GetStatusCode() >= http.StatusInternalServerError:
				log.Error(errors.New("analytics/routes request failed[internal server error], retrying... "))
			}
		}).
		SetRetryCount(3).
		SetRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || resp.GetStatusCode() == http.StatusTooManyRequests || resp.GetStatusCode() >= http.StatusInternalServerError
		}).
		SetContentType("application/json").
		SetHeader("Accept", "application/json")
	if s.cfg.LingoAnalyticsRoutes.Credentials.APIKey != "" {
		request = request.SetBearerAuthToken(s.cfg.LingoAnalyticsRoutes.Credentials.APIKey)
	}

	return request
}
