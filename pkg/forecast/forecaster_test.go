package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

func TestPredictWithoutHistory(t *testing.T) {
	f := NewForecaster()
	_, err := f.Predict("order-api", 30*time.Minute, nil)
	assert.Error(t, err)
}

func TestPredictInvalidHorizon(t *testing.T) {
	f := NewForecaster()
	f.Observe("order-api", time.Now(), 0.5, 4)
	_, err := f.Predict("order-api", 0, nil)
	assert.Error(t, err)
}

func TestPredictConfidenceStrictlyDecreases(t *testing.T) {
	f := NewForecaster()
	now := time.Now()
	for i := 0; i < 30; i++ {
		f.Observe("order-api", now.Add(time.Duration(i)*5*time.Minute), 0.6, 4)
	}

	points, err := f.Predict("order-api", time.Hour, nil)
	require.NoError(t, err)
	require.Len(t, points, 12)

	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i].Confidence, points[i-1].Confidence,
			"confidence must strictly decrease with horizon distance")
		assert.True(t, points[i].Timestamp.After(points[i-1].Timestamp))
	}
	assert.Less(t, points[0].Confidence, 0.9)
}

func TestPredictShortHistoryLowersConfidence(t *testing.T) {
	f := NewForecaster()
	now := time.Now()
	for i := 0; i < 3; i++ {
		f.Observe("order-api", now, 0.6, 4)
	}

	points, err := f.Predict("order-api", 5*time.Minute, nil)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	// start = 0.5 + 0.02*3 = 0.56, then one decay step.
	assert.InDelta(t, 0.56*0.92, points[0].Confidence, 1e-9)
}

func TestPredictInstancesAtLeastOne(t *testing.T) {
	f := NewForecaster()
	now := time.Now()
	for i := 0; i < 10; i++ {
		f.Observe("order-api", now, 0.0, 0)
	}

	points, err := f.Predict("order-api", 15*time.Minute, nil)
	require.NoError(t, err)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.RecommendedInstances, 1)
	}
}

func TestPredictUsesProfilePatternWhileHistoryThin(t *testing.T) {
	profile := &models.FinancialTradingProfile{
		Timezone:    "UTC",
		MarketOpen:  "00:00",
		MarketClose: "23:59",
		TradingDays: []int{0, 1, 2, 3, 4, 5, 6},
		Patterns:    make([]models.PatternBucket, 0, 7),
	}
	for d := 0; d < 7; d++ {
		profile.Patterns = append(profile.Patterns,
			models.PatternBucket{Day: d, HourStart: 0, HourEnd: 23, Multiplier: 2.0})
	}

	f := NewForecaster()
	f.Observe("order-api", time.Now(), 0.5, 4)

	withProfile, err := f.Predict("order-api", 5*time.Minute, profile)
	require.NoError(t, err)
	without, err := f.Predict("order-api", 5*time.Minute, nil)
	require.NoError(t, err)

	assert.InDelta(t, 2.0*without[0].PredictedLoad, withProfile[0].PredictedLoad, 1e-9)
}
