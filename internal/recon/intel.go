package recon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/config"
	"github.com/hakim/autopent/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Intel service names as they appear in a ReconBundle.
const (
	SourceShodan     = "Shodan"
	SourceBinaryEdge = "BinaryEdge"
	SourceOnyphe     = "ONYPHE"
)

const intelBodyLimit = 4 << 20

// IntelSource queries one IP intelligence HTTP API for the resolved address.
type IntelSource struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	request func(ctx context.Context, ip string) (*http.Request, error)
	extract func(body []byte) string
}

// Name returns the service name used for the bundle entry.
func (s *IntelSource) Name() string { return s.name }

// Lookup queries the service for req.Address. Unresolved targets are skipped.
func (s *IntelSource) Lookup(ctx context.Context, req Request) (string, error) {
	if req.Address == "" {
		return "", Skip("target not resolved")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", models.ErrSourceUnavailable, err)
		}
	}

	httpReq, err := s.request(ctx, req.Address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSourceUnavailable, redactURLError(err))
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSourceUnavailable, redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, intelBodyLimit))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", models.ErrSourceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d: %s", models.ErrSourceUnavailable, resp.StatusCode, excerpt(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: invalid JSON response", models.ErrSourceUnavailable)
	}

	return s.extract(body), nil
}

// redactURLError drops the query string from a *url.Error, which may carry
// an API key.
func redactURLError(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	u := urlErr.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return fmt.Errorf("%s %q: %w", urlErr.Op, u, urlErr.Err)
}

// NewIntelSources returns the intel sources that have an API key configured,
// in Shodan, BinaryEdge, ONYPHE order.
func NewIntelSources(cfg config.IntelConfig) []Source {
	timeout := config.Duration(cfg.Timeout, 15*time.Second)
	client := &http.Client{Timeout: timeout}

	var sources []Source
	if cfg.Shodan.APIKey != "" {
		sources = append(sources, NewShodan(cfg.Shodan, client))
	}
	if cfg.BinaryEdge.APIKey != "" {
		sources = append(sources, NewBinaryEdge(cfg.BinaryEdge, client))
	}
	if cfg.Onyphe.APIKey != "" {
		sources = append(sources, NewOnyphe(cfg.Onyphe, client))
	}
	return sources
}

// NewShodan creates the Shodan host lookup source
func NewShodan(cfg config.IntelServiceConfig, client *http.Client) *IntelSource {
	base := baseURL(cfg.BaseURL, "https://api.shodan.io")
	return &IntelSource{
		name:    SourceShodan,
		client:  orDefaultClient(client),
		limiter: newLimiter(cfg.RatePerMinute),
		request: func(ctx context.Context, ip string) (*http.Request, error) {
			u := fmt.Sprintf("%s/shodan/host/%s?key=%s", base, url.PathEscape(ip), url.QueryEscape(cfg.APIKey))
			return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		},
		extract: func(body []byte) string {
			r := gjson.ParseBytes(body)
			return joinFields(
				field("org", r.Get("org").String()),
				field("os", r.Get("os").String()),
				field("ports", joinArray(r.Get("ports"))),
				field("vulns", joinArray(r.Get("vulns"))),
			)
		},
	}
}

// NewBinaryEdge creates the BinaryEdge IP query source
func NewBinaryEdge(cfg config.IntelServiceConfig, client *http.Client) *IntelSource {
	base := baseURL(cfg.BaseURL, "https://api.binaryedge.io")
	return &IntelSource{
		name:    SourceBinaryEdge,
		client:  orDefaultClient(client),
		limiter: newLimiter(cfg.RatePerMinute),
		request: func(ctx context.Context, ip string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v2/query/ip/"+url.PathEscape(ip), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-Key", cfg.APIKey)
			return req, nil
		},
		extract: func(body []byte) string {
			r := gjson.ParseBytes(body)
			return joinFields(
				field("total", r.Get("total").String()),
				field("ports", joinArray(r.Get("events.#.port"))),
			)
		},
	}
}

// NewOnyphe creates the ONYPHE geolocation source
func NewOnyphe(cfg config.IntelServiceConfig, client *http.Client) *IntelSource {
	base := baseURL(cfg.BaseURL, "https://www.onyphe.io")
	return &IntelSource{
		name:    SourceOnyphe,
		client:  orDefaultClient(client),
		limiter: newLimiter(cfg.RatePerMinute),
		request: func(ctx context.Context, ip string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v2/simple/geoloc/"+url.PathEscape(ip), nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "apikey "+cfg.APIKey)
			return req, nil
		},
		extract: func(body []byte) string {
			r := gjson.ParseBytes(body).Get("results.0")
			return joinFields(
				field("country", r.Get("country").String()),
				field("city", r.Get("city").String()),
				field("asn", r.Get("asn").String()),
				field("organization", r.Get("organization").String()),
			)
		},
	}
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func baseURL(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return strings.TrimRight(configured, "/")
}

func orDefaultClient(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

func field(key, value string) string {
	if value == "" {
		return ""
	}
	return key + "=" + value
}

func joinFields(fields ...string) string {
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return "no data for address"
	}
	return strings.Join(out, "; ")
}

func joinArray(r gjson.Result) string {
	var values []string
	seen := make(map[string]bool)
	for _, v := range r.Array() {
		s := v.String()
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		values = append(values, s)
	}
	return strings.Join(values, ",")
}
