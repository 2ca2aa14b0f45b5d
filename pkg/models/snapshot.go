package models

import (
	"fmt"
	"strings"
	"time"
)

// InstanceCounts tracks the instance population of a service
type InstanceCounts struct {
	Current   int `json:"current"`
	Desired   int `json:"desired"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// ResourceStat holds one resource dimension as usage against request and limit
type ResourceStat struct {
	Usage   float64 `json:"usage"`
	Request float64 `json:"request"`
	Limit   float64 `json:"limit"`
}

// ResourceUsage aggregates the resource dimensions of a snapshot
type ResourceUsage struct {
	CPU        ResourceStat `json:"cpu"`
	Memory     ResourceStat `json:"memory"`
	NetworkIn  ResourceStat `json:"network_in"`
	NetworkOut ResourceStat `json:"network_out"`
}

// PerformanceMetrics holds the request-level indicators of a snapshot
type PerformanceMetrics struct {
	ResponseTime float64 `json:"response_time"` // milliseconds
	Throughput   float64 `json:"throughput"`    // requests per second
	ErrorRate    float64 `json:"error_rate"`    // fraction in [0,1]
	QueueLength  float64 `json:"queue_length"`
}

// ServiceMetricsSnapshot is one collector observation of a service.
// Snapshots are immutable once produced; downstream consumers only read them.
type ServiceMetricsSnapshot struct {
	ServiceName string             `json:"service_name"`
	Timestamp   time.Time          `json:"timestamp"`
	Instances   InstanceCounts     `json:"instances"`
	Resources   ResourceUsage      `json:"resources"`
	Performance PerformanceMetrics `json:"performance"`
	Custom      map[string]float64 `json:"custom,omitempty"`

	// Degraded marks snapshots where part of the fetch failed and missing
	// numeric fields were zero-filled.
	Degraded bool `json:"degraded"`
}

// Validate checks that the snapshot is well-formed
func (s *ServiceMetricsSnapshot) Validate() error {
	if s.ServiceName == "" {
		return fmt.Errorf("snapshot missing service name")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot missing timestamp")
	}
	if s.Instances.Current < 0 || s.Instances.Desired < 0 {
		return fmt.Errorf("snapshot has negative instance counts")
	}
	return nil
}

func (r ResourceStat) metric(field string) (float64, error) {
	switch field {
	case "usage":
		return r.Usage, nil
	case "request":
		return r.Request, nil
	case "limit":
		return r.Limit, nil
	default:
		return 0, fmt.Errorf("unknown resource field %q", field)
	}
}

// MetricValue resolves a dot-path into the snapshot. Supported roots are
// instances, cpu, memory, network_in, network_out, performance and custom,
// e.g. "cpu.usage", "performance.error_rate", "custom.order_backlog".
func (s *ServiceMetricsSnapshot) MetricValue(path string) (float64, error) {
	parts := strings.SplitN(path, ".", 2)
	root := parts[0]
	field := ""
	if len(parts) == 2 {
		field = parts[1]
	}

	switch root {
	case "instances":
		switch field {
		case "current":
			return float64(s.Instances.Current), nil
		case "desired":
			return float64(s.Instances.Desired), nil
		case "healthy":
			return float64(s.Instances.Healthy), nil
		case "unhealthy":
			return float64(s.Instances.Unhealthy), nil
		}
		return 0, fmt.Errorf("unknown instance field %q", field)
	case "cpu":
		return s.Resources.CPU.metric(field)
	case "memory":
		return s.Resources.Memory.metric(field)
	case "network_in":
		return s.Resources.NetworkIn.metric(field)
	case "network_out":
		return s.Resources.NetworkOut.metric(field)
	case "performance":
		switch field {
		case "response_time":
			return s.Performance.ResponseTime, nil
		case "throughput":
			return s.Performance.Throughput, nil
		case "error_rate":
			return s.Performance.ErrorRate, nil
		case "queue_length":
			return s.Performance.QueueLength, nil
		}
		return 0, fmt.Errorf("unknown performance field %q", field)
	case "custom":
		if v, ok := s.Custom[field]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown custom metric %q", field)
	default:
		return 0, fmt.Errorf("unknown metric path %q", path)
	}
}
