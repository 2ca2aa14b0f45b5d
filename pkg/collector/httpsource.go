package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// HTTPSource fetches service metrics from the monitoring aggregator's REST
// API. Each metric family is a separate endpoint so a failing family
// degrades the snapshot instead of killing it.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source against the aggregator at baseURL
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: aggregator returned %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetInstanceMetrics returns the service's instance counts
func (s *HTTPSource) GetInstanceMetrics(ctx context.Context, service string) (models.InstanceCounts, error) {
	var out models.InstanceCounts
	err := s.get(ctx, "/v1/services/"+url.PathEscape(service)+"/instances", &out)
	return out, err
}

// GetResourceMetrics returns the service's resource usage
func (s *HTTPSource) GetResourceMetrics(ctx context.Context, service string) (models.ResourceUsage, error) {
	var out models.ResourceUsage
	err := s.get(ctx, "/v1/services/"+url.PathEscape(service)+"/resources", &out)
	return out, err
}

// GetPerformanceMetrics returns the service's performance numbers
func (s *HTTPSource) GetPerformanceMetrics(ctx context.Context, service string) (models.PerformanceMetrics, error) {
	var out models.PerformanceMetrics
	err := s.get(ctx, "/v1/services/"+url.PathEscape(service)+"/performance", &out)
	return out, err
}

// GetCustomMetrics returns application-specific gauges, keyed by name
func (s *HTTPSource) GetCustomMetrics(ctx context.Context, service string) (map[string]float64, error) {
	out := make(map[string]float64)
	err := s.get(ctx, "/v1/services/"+url.PathEscape(service)+"/custom", &out)
	return out, err
}
