package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpikeDetectorFlatSeries(t *testing.T) {
	d := NewSpikeDetector(1.0, 10.0)
	for i := 0; i < 50; i++ {
		r := d.Observe(10.0)
		assert.False(t, r.IsSpike)
	}
	assert.Equal(t, 0, d.SpikeCount())
}

func TestSpikeDetectorUpwardExcursion(t *testing.T) {
	d := NewSpikeDetector(1.0, 10.0)
	for i := 0; i < 10; i++ {
		d.Observe(10.0)
	}

	// A sustained jump of +3 sigma accumulates 2.5 per step against the
	// h=5 threshold, so detection fires on the third elevated observation.
	var fired SpikeResult
	for i := 0; i < 5; i++ {
		r := d.Observe(13.0)
		if r.IsSpike {
			fired = r
			break
		}
	}
	assert.True(t, fired.IsSpike)
	assert.Equal(t, SpikeUpward, fired.Direction)
	assert.Greater(t, fired.Severity, 1.0)
	assert.Equal(t, 1, d.SpikeCount())
}

func TestSpikeDetectorDownwardExcursion(t *testing.T) {
	d := NewSpikeDetector(1.0, 10.0)
	var fired SpikeResult
	for i := 0; i < 5; i++ {
		r := d.Observe(7.0)
		if r.IsSpike {
			fired = r
			break
		}
	}
	assert.True(t, fired.IsSpike)
	assert.Equal(t, SpikeDownward, fired.Direction)
}

func TestSpikeDetectorSumsResetAfterDetection(t *testing.T) {
	d := NewSpikeDetector(1.0, 0.0)
	r := d.Observe(100.0)
	assert.True(t, r.IsSpike)

	// Back at the reference, the reset sums must not re-fire.
	r = d.Observe(0.0)
	assert.False(t, r.IsSpike)
	assert.Equal(t, 1, d.SpikeCount())
}

func TestSpikeDetectorReset(t *testing.T) {
	d := NewSpikeDetector(1.0, 0.0)
	d.Observe(100.0)
	d.Reset()
	assert.Equal(t, 0, d.SpikeCount())
}
