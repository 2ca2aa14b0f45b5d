package forecast

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

const (
	// horizonStep is the spacing between forecast points.
	horizonStep = 5 * time.Minute
	// confidenceDecay shrinks confidence at every step so that a farther
	// horizon always carries strictly lower confidence.
	confidenceDecay = 0.92
	// minSeasonalSamples is how many observations a (weekday,hour) bucket
	// needs before its multiplier is trusted over the trading profile.
	minSeasonalSamples = 6
)

type loadSample struct {
	at        time.Time
	load      float64
	instances int
}

// seasonalTable accumulates mean load per (weekday, hour) bucket
type seasonalTable struct {
	sum   [7][24]float64
	n     [7][24]int
	total float64
	count int
}

func (t *seasonalTable) add(at time.Time, load float64) {
	d, h := int(at.Weekday()), at.Hour()
	t.sum[d][h] += load
	t.n[d][h]++
	t.total += load
	t.count++
}

// multiplier returns the bucket mean relative to the overall mean, or ok=false
// when the bucket has too little history to be trusted.
func (t *seasonalTable) multiplier(at time.Time) (float64, bool) {
	d, h := int(at.Weekday()), at.Hour()
	if t.n[d][h] < minSeasonalSamples || t.count == 0 || t.total == 0 {
		return 1.0, false
	}
	overall := t.total / float64(t.count)
	bucket := t.sum[d][h] / float64(t.n[d][h])
	if overall <= 0 {
		return 1.0, false
	}
	return bucket / overall, true
}

// Forecaster produces advisory load predictions per service. It observes the
// load score of every decision cycle, smooths it, tracks the recent trend and
// accumulates a seasonal (weekday, hour) profile from history.
type Forecaster struct {
	mu         sync.Mutex
	smoothers  map[string]*Smoother
	samples    map[string][]loadSample
	seasonal   map[string]*seasonalTable
	maxSamples int
}

// NewForecaster creates an empty forecaster
func NewForecaster() *Forecaster {
	return &Forecaster{
		smoothers:  make(map[string]*Smoother),
		samples:    make(map[string][]loadSample),
		seasonal:   make(map[string]*seasonalTable),
		maxSamples: 288, // one day at 5-minute cycles
	}
}

// Observe records one cycle's load score and instance count for a service
func (f *Forecaster) Observe(service string, at time.Time, load float64, instances int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sm, ok := f.smoothers[service]
	if !ok {
		sm = NewSmoother(0.167)
		f.smoothers[service] = sm
	}
	sm.Update(load)

	f.samples[service] = append(f.samples[service], loadSample{at: at, load: load, instances: instances})
	if len(f.samples[service]) > f.maxSamples {
		f.samples[service] = f.samples[service][len(f.samples[service])-f.maxSamples:]
	}

	tbl, ok := f.seasonal[service]
	if !ok {
		tbl = &seasonalTable{}
		f.seasonal[service] = tbl
	}
	tbl.add(at, load)
}

// Predict produces a point series out to the horizon. Seasonal multipliers
// come from accumulated history, falling back to the trading profile's
// pattern table (profile may be nil) while history is thin. Confidence
// strictly decreases with horizon distance.
func (f *Forecaster) Predict(service string, horizon time.Duration, profile *models.FinancialTradingProfile) ([]models.PredictionPoint, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %v", horizon)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	sm, ok := f.smoothers[service]
	if !ok || sm.Count() == 0 {
		return nil, fmt.Errorf("no load history for service %q", service)
	}
	samples := f.samples[service]

	recent := make([]float64, 0, len(samples))
	for _, s := range samples {
		recent = append(recent, s.load)
	}
	_, slope := EstimateTrend(recent)

	base := sm.Current()
	last := samples[len(samples)-1]
	loadPerInstance := base
	if last.instances > 0 {
		loadPerInstance = base / float64(last.instances)
	}

	// Confidence starts lower when history is short.
	start := 0.9
	if sm.Count() < 20 {
		start = 0.5 + 0.02*float64(sm.Count())
	}

	steps := int(horizon / horizonStep)
	if steps < 1 {
		steps = 1
	}

	now := time.Now()
	points := make([]models.PredictionPoint, 0, steps)
	confidence := start
	for i := 1; i <= steps; i++ {
		confidence *= confidenceDecay
		at := now.Add(time.Duration(i) * horizonStep)

		predicted := base + slope*float64(i)
		mult, haveHistory := f.seasonal[service].multiplier(at)
		if !haveHistory && profile != nil {
			mult = profile.MultiplierAt(at)
		}
		predicted *= mult
		if predicted < 0 {
			predicted = 0
		}

		instances := last.instances
		if loadPerInstance > 0 {
			instances = int(math.Ceil(predicted / loadPerInstance))
		}
		if instances < 1 {
			instances = 1
		}

		points = append(points, models.PredictionPoint{
			Timestamp:            at,
			PredictedLoad:        predicted,
			RecommendedInstances: instances,
			Confidence:           confidence,
		})
	}

	return points, nil
}
