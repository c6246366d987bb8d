package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/endpoint-console/pkg/endpoints"
)

const httpLogPrefix = "snapshot:http"

// maxSnapshotBytes bounds the response body read from a snapshot endpoint.
const maxSnapshotBytes = 8 << 20

// HTTPSource GETs a snapshot document from a URL.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource. A zero timeout means 10s.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

// Describe implements Source.
func (s *HTTPSource) Describe() string { return "http:" + s.url }

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]endpoints.Module, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - build request: %w", httpLogPrefix, err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - GET %s: %w", httpLogPrefix, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s - GET %s: unexpected status %d", httpLogPrefix, s.url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("%s - read body: %w", httpLogPrefix, err)
	}

	modules, err := Decode(data, FormatFromContentType(resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, fmt.Errorf("%s - %s: %w", httpLogPrefix, s.url, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d modules from %s", httpLogPrefix, len(modules), s.url))
	return modules, nil
}
