package forecast

import (
	"math"
	"time"
)

// SpikeDirection is the sign of a detected excursion
type SpikeDirection int

const (
	SpikeNone SpikeDirection = iota
	SpikeUpward
	SpikeDownward
)

// String returns the direction as a readable label
func (sd SpikeDirection) String() string {
	switch sd {
	case SpikeUpward:
		return "upward"
	case SpikeDownward:
		return "downward"
	default:
		return "none"
	}
}

// SpikeResult is the outcome of one SpikeDetector observation
type SpikeResult struct {
	Value       float64        `json:"value"`
	PositiveSum float64        `json:"positive_sum"`
	NegativeSum float64        `json:"negative_sum"`
	Direction   SpikeDirection `json:"direction"`
	Severity    float64        `json:"severity"` // ratio of sum to threshold
	IsSpike     bool           `json:"is_spike"`
}

// SpikeDetector implements CUSUM change detection over a metric series.
// The engine feeds it error-rate and queue-length observations; a detected
// upward excursion escalates decision urgency independent of confidence.
type SpikeDetector struct {
	threshold float64 // h, detection threshold
	drift     float64 // k, expected drift allowance
	reference float64 // target mean

	positiveSum float64
	negativeSum float64

	observations []float64
	maxHistory   int
	spikeCount   int
	lastSpike    time.Time
}

// NewSpikeDetector creates a detector with the standard k=0.5s, h=5s
// parameterization around the given reference mean.
func NewSpikeDetector(sigma, reference float64) *SpikeDetector {
	if sigma <= 0 {
		sigma = 1.0
	}
	return &SpikeDetector{
		threshold:  5.0 * sigma,
		drift:      0.5 * sigma,
		reference:  reference,
		maxHistory: 100,
	}
}

// Observe processes one observation and reports whether the cumulative
// deviation crossed the detection threshold.
func (d *SpikeDetector) Observe(value float64) SpikeResult {
	d.observations = append(d.observations, value)
	if len(d.observations) > d.maxHistory {
		d.observations = d.observations[len(d.observations)-d.maxHistory:]
	}

	deviation := value - d.reference

	// C+ = max(0, C+ + (x - mu0) - k), C- = max(0, C- - (x - mu0) - k)
	d.positiveSum = math.Max(0, d.positiveSum+deviation-d.drift)
	d.negativeSum = math.Max(0, d.negativeSum-deviation-d.drift)

	result := SpikeResult{
		Value:       value,
		PositiveSum: d.positiveSum,
		NegativeSum: d.negativeSum,
		Direction:   SpikeNone,
	}

	if d.positiveSum > d.threshold {
		result.Direction = SpikeUpward
		result.Severity = d.positiveSum / d.threshold
	} else if d.negativeSum > d.threshold {
		result.Direction = SpikeDownward
		result.Severity = d.negativeSum / d.threshold
	}

	if result.Direction != SpikeNone {
		result.IsSpike = true
		d.spikeCount++
		d.lastSpike = time.Now()
		// Reset sums after detection so one excursion fires once.
		d.positiveSum = 0
		d.negativeSum = 0
	}

	return result
}

// SpikeCount returns how many excursions have been detected
func (d *SpikeDetector) SpikeCount() int {
	return d.spikeCount
}

// Reset clears all detector state
func (d *SpikeDetector) Reset() {
	d.positiveSum = 0
	d.negativeSum = 0
	d.observations = nil
	d.spikeCount = 0
	d.lastSpike = time.Time{}
}
