package recon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hakim/autopent/internal/models"
)

// DefaultHeaderTimeout bounds the header fetch.
const DefaultHeaderTimeout = 5 * time.Second

// HeaderSource fetches the target URL and reports the response headers.
type HeaderSource struct {
	Client    *http.Client
	UserAgent string
}

// NewHeaderSource creates a header source with the given request timeout
func NewHeaderSource(timeout time.Duration, userAgent string) *HeaderSource {
	if timeout <= 0 {
		timeout = DefaultHeaderTimeout
	}
	return &HeaderSource{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
	}
}

// Name returns the HTTP headers source name.
func (h *HeaderSource) Name() string { return models.SourceHeaders }

// Lookup fetches req.URL and returns the status line and sorted headers.
func (h *HeaderSource) Lookup(ctx context.Context, req Request) (string, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHeaderTimeout}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	if h.UserAgent != "" {
		httpReq.Header.Set("User-Agent", h.UserAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	return formatHeaders(resp.Status, resp.Header), nil
}

func formatHeaders(status string, header http.Header) string {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := []string{"HTTP " + status}
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(header.Values(name), ", "))
	}
	return strings.Join(parts, "; ")
}
