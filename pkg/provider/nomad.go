package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// NomadProvider scales task groups through the Nomad HTTP API. The service
// name maps to a job whose single task group carries the instances.
type NomadProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewNomadProvider creates an adapter against the Nomad agent at baseURL
func NewNomadProvider(baseURL, token string, timeout time.Duration) *NomadProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NomadProvider{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Kind returns the platform kind this adapter serves
func (p *NomadProvider) Kind() models.PlatformKind {
	return models.PlatformNomad
}

type nomadScaleRequest struct {
	Count   int               `json:"Count"`
	Message string            `json:"Message,omitempty"`
	Meta    map[string]string `json:"Meta,omitempty"`
}

type nomadJobStatus struct {
	TaskGroups []struct {
		Name  string `json:"Name"`
		Count int    `json:"Count"`
		Scaling *struct {
			Min int `json:"Min"`
			Max int `json:"Max"`
		} `json:"Scaling,omitempty"`
	} `json:"TaskGroups"`
}

func (p *NomadProvider) do(req *http.Request) (*http.Response, error) {
	if p.token != "" {
		req.Header.Set("X-Nomad-Token", p.token)
	}
	return p.client.Do(req)
}

// Scale sets the job's task group count
func (p *NomadProvider) Scale(ctx context.Context, service string, target int) (models.ScaleResult, error) {
	start := time.Now()

	previous, err := p.CurrentInstances(ctx, service)
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("read current count before scale: %w", err)
	}

	body, err := json.Marshal(nomadScaleRequest{
		Count:   target,
		Message: "autoscaler adjustment",
	})
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("marshal scale request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/job/%s/scale", p.baseURL, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("build scale request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("scale %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ScaleResult{}, fmt.Errorf("scale %s: nomad returned %s", service, resp.Status)
	}

	return models.ScaleResult{
		Success:           true,
		PreviousInstances: previous,
		NewInstances:      target,
		Duration:          time.Since(start),
	}, nil
}

func (p *NomadProvider) jobStatus(ctx context.Context, service string) (nomadJobStatus, error) {
	url := fmt.Sprintf("%s/v1/job/%s", p.baseURL, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nomadJobStatus{}, fmt.Errorf("build job request: %w", err)
	}

	resp, err := p.do(req)
	if err != nil {
		return nomadJobStatus{}, fmt.Errorf("job %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nomadJobStatus{}, fmt.Errorf("job %s: nomad returned %s", service, resp.Status)
	}

	var out nomadJobStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nomadJobStatus{}, fmt.Errorf("decode job response: %w", err)
	}
	if len(out.TaskGroups) == 0 {
		return nomadJobStatus{}, fmt.Errorf("job %s has no task groups", service)
	}
	return out, nil
}

// CurrentInstances returns the first task group's count
func (p *NomadProvider) CurrentInstances(ctx context.Context, service string) (int, error) {
	st, err := p.jobStatus(ctx, service)
	if err != nil {
		return 0, err
	}
	return st.TaskGroups[0].Count, nil
}

// Limits returns the task group's scaling policy bounds, or a permissive
// default when the job carries no scaling stanza.
func (p *NomadProvider) Limits(ctx context.Context, service string) (models.InstanceLimits, error) {
	st, err := p.jobStatus(ctx, service)
	if err != nil {
		return models.InstanceLimits{}, err
	}
	if sc := st.TaskGroups[0].Scaling; sc != nil {
		return models.InstanceLimits{Min: sc.Min, Max: sc.Max}, nil
	}
	return models.InstanceLimits{Min: 0, Max: 1000}, nil
}
