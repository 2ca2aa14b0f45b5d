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

// KubernetesProvider scales deployments through the platform's orchestration
// gateway, a thin REST facade in front of the cluster API.
type KubernetesProvider struct {
	baseURL   string
	namespace string
	client    *http.Client
}

// NewKubernetesProvider creates an adapter against the gateway at baseURL
func NewKubernetesProvider(baseURL, namespace string, timeout time.Duration) *KubernetesProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KubernetesProvider{
		baseURL:   baseURL,
		namespace: namespace,
		client:    &http.Client{Timeout: timeout},
	}
}

// Kind returns the platform kind this adapter serves
func (p *KubernetesProvider) Kind() models.PlatformKind {
	return models.PlatformKubernetes
}

type k8sScaleRequest struct {
	Replicas int `json:"replicas"`
}

type k8sScaleResponse struct {
	PreviousReplicas int      `json:"previous_replicas"`
	Replicas         int      `json:"replicas"`
	Warnings         []string `json:"warnings,omitempty"`
}

type k8sStatusResponse struct {
	Replicas      int `json:"replicas"`
	ReadyReplicas int `json:"ready_replicas"`
	MinReplicas   int `json:"min_replicas"`
	MaxReplicas   int `json:"max_replicas"`
}

// Scale sets the deployment's replica count and reports the transition
func (p *KubernetesProvider) Scale(ctx context.Context, service string, target int) (models.ScaleResult, error) {
	start := time.Now()

	body, err := json.Marshal(k8sScaleRequest{Replicas: target})
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("marshal scale request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/namespaces/%s/deployments/%s/scale", p.baseURL, p.namespace, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("build scale request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.ScaleResult{}, fmt.Errorf("scale %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ScaleResult{}, fmt.Errorf("scale %s: gateway returned %s", service, resp.Status)
	}

	var out k8sScaleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ScaleResult{}, fmt.Errorf("decode scale response: %w", err)
	}

	return models.ScaleResult{
		Success:           true,
		PreviousInstances: out.PreviousReplicas,
		NewInstances:      out.Replicas,
		Duration:          time.Since(start),
		Warnings:          out.Warnings,
	}, nil
}

func (p *KubernetesProvider) status(ctx context.Context, service string) (k8sStatusResponse, error) {
	url := fmt.Sprintf("%s/v1/namespaces/%s/deployments/%s", p.baseURL, p.namespace, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return k8sStatusResponse{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return k8sStatusResponse{}, fmt.Errorf("status %s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return k8sStatusResponse{}, fmt.Errorf("status %s: gateway returned %s", service, resp.Status)
	}

	var out k8sStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return k8sStatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	return out, nil
}

// CurrentInstances returns the deployment's current replica count
func (p *KubernetesProvider) CurrentInstances(ctx context.Context, service string) (int, error) {
	st, err := p.status(ctx, service)
	if err != nil {
		return 0, err
	}
	return st.Replicas, nil
}

// Limits returns the gateway-reported replica bounds
func (p *KubernetesProvider) Limits(ctx context.Context, service string) (models.InstanceLimits, error) {
	st, err := p.status(ctx, service)
	if err != nil {
		return models.InstanceLimits{}, err
	}
	return models.InstanceLimits{Min: st.MinReplicas, Max: st.MaxReplicas}, nil
}
