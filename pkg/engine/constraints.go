package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// ConstraintStats counts financial-constraint activity for observability
type ConstraintStats struct {
	Evaluations     int64 `json:"evaluations"`
	ScaleDownBlocks int64 `json:"scale_down_blocks"`
	MultiplierHits  int64 `json:"multiplier_hits"`
}

// financialGate enforces the trading-hours safety constraints: inside a
// service's market window, disruptive scale-downs are blocked unless the
// decision is critical, and scale-up targets are amplified by the current
// trading-pattern multiplier.
type financialGate struct {
	mu       sync.Mutex
	profiles map[string]*models.FinancialTradingProfile
	global   *models.FinancialTradingProfile
	stats    ConstraintStats
}

func newFinancialGate(profiles []*models.FinancialTradingProfile) *financialGate {
	g := &financialGate{profiles: make(map[string]*models.FinancialTradingProfile)}
	for _, p := range profiles {
		if p.ServiceName == "" {
			g.global = p
		} else {
			g.profiles[p.ServiceName] = p
		}
	}
	return g
}

// profileFor returns the service's profile, falling back to the global one
func (g *financialGate) profileFor(service string) *models.FinancialTradingProfile {
	if p, ok := g.profiles[service]; ok {
		return p
	}
	return g.global
}

// blockScaleDown reports whether a scale-down must be downgraded to maintain
func (g *financialGate) blockScaleDown(service string, urgency models.Urgency, now time.Time) (bool, string) {
	profile := g.profileFor(service)
	if profile == nil {
		return false, ""
	}

	g.mu.Lock()
	g.stats.Evaluations++
	g.mu.Unlock()

	if !profile.InTradingWindow(now) {
		return false, ""
	}
	if urgency == models.UrgencyCritical {
		return false, fmt.Sprintf("scale-down during trading hours permitted: urgency %s", urgency)
	}

	g.mu.Lock()
	g.stats.ScaleDownBlocks++
	g.mu.Unlock()
	return true, fmt.Sprintf("scale-down blocked: inside trading window %s-%s %s",
		profile.MarketOpen, profile.MarketClose, profile.Timezone)
}

// amplifyScaleUp applies the trading-pattern multiplier to a scale-up target.
// Outside the trading window the target passes through unchanged.
func (g *financialGate) amplifyScaleUp(service string, target int, now time.Time) (int, string) {
	profile := g.profileFor(service)
	if profile == nil || !profile.InTradingWindow(now) {
		return target, ""
	}

	mult := profile.MultiplierAt(now)
	if mult == 1.0 {
		return target, ""
	}

	g.mu.Lock()
	g.stats.MultiplierHits++
	g.mu.Unlock()

	amplified := int(math.Ceil(float64(target) * mult))
	return amplified, fmt.Sprintf("trading-pattern multiplier %.2f raised target %d to %d", mult, target, amplified)
}

// Stats returns a copy of the constraint counters
func (g *financialGate) Stats() ConstraintStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
