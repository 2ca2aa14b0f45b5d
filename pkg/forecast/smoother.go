package forecast

// Smoother implements exponentially weighted moving average smoothing of a
// per-service load series. alpha close to 1 tracks the raw signal, small
// alpha damps transient spikes.
type Smoother struct {
	alpha       float64
	current     float64
	initialized bool
	count       int
}

// NewSmoother creates a smoother with the given alpha; out-of-range values
// fall back to 0.167, which weights roughly the last ten observations.
func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.167
	}
	return &Smoother{alpha: alpha}
}

// Update folds a new observation into the average and returns the result
func (s *Smoother) Update(value float64) float64 {
	s.count++
	if !s.initialized {
		s.current = value
		s.initialized = true
		return s.current
	}
	s.current = s.alpha*value + (1-s.alpha)*s.current
	return s.current
}

// Current returns the smoothed value, zero before the first observation
func (s *Smoother) Current() float64 {
	if !s.initialized {
		return 0
	}
	return s.current
}

// Count returns how many observations have been folded in
func (s *Smoother) Count() int {
	return s.count
}

// Reset discards all state
func (s *Smoother) Reset() {
	s.current = 0
	s.initialized = false
	s.count = 0
}

// TrendDirection classifies the slope of a recent series
type TrendDirection int

const (
	TrendFlat TrendDirection = iota
	TrendUp
	TrendDown
)

// String returns the direction as a readable label
func (td TrendDirection) String() string {
	switch td {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// EstimateTrend fits a least-squares line through the series and returns the
// direction plus the per-step rate. Fewer than three points is always flat.
func EstimateTrend(values []float64) (TrendDirection, float64) {
	n := len(values)
	if n < 3 {
		return TrendFlat, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return TrendFlat, 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	const threshold = 0.01
	switch {
	case slope > threshold:
		return TrendUp, slope
	case slope < -threshold:
		return TrendDown, slope
	default:
		return TrendFlat, slope
	}
}
