package l4metrics

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel is the discrete crowd risk classification. Levels are ordered;
// a larger value is a higher risk.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// String returns the upper-case level name.
func (r RiskLevel) String() string {
	if r < RiskLow || r > RiskCritical {
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
	return riskNames[r]
}

// ParseRiskLevel parses a level name, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskNames {
		if strings.EqualFold(s, name) {
			return RiskLevel(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

// MarshalJSON encodes the level as its name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a level name.
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*r = level
	return nil
}

// Baseline thresholds over density and stampede probability.
const (
	criticalDensity     = 4.0
	criticalProbability = 0.8
	highDensity         = 2.5
	highProbability     = 0.5
	mediumDensity       = 1.5
)

// Escalation thresholds. Each one forces CRITICAL on its own.
const (
	panicEscalation    = 0.6
	zoneViolationLimit = 3
	counterFlowLimit   = 3
)

// BaselineRisk classifies risk from density and stampede probability alone.
func BaselineRisk(density, stampedeProbability float64) RiskLevel {
	switch {
	case density > criticalDensity || stampedeProbability > criticalProbability:
		return RiskCritical
	case density > highDensity || stampedeProbability > highProbability:
		return RiskHigh
	case density > mediumDensity:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Escalation carries the override signals for one frame.
type Escalation struct {
	PanicIndex       float64
	ZoneViolations   int
	CounterFlowCount int
	WeaponLabels     []string // Weapon labels present in the frame
}

// Reasons returns the names of the overrides that fire, in a fixed order.
func (e Escalation) Reasons() []string {
	var reasons []string
	if e.PanicIndex > panicEscalation {
		reasons = append(reasons, "panic")
	}
	if e.ZoneViolations > zoneViolationLimit {
		reasons = append(reasons, "zone")
	}
	if e.CounterFlowCount > counterFlowLimit {
		reasons = append(reasons, "counter-flow")
	}
	for _, w := range e.WeaponLabels {
		reasons = append(reasons, "weapon:"+w)
	}
	return reasons
}

// Escalate raises level to CRITICAL when any override fires. It never
// lowers a level.
func Escalate(level RiskLevel, e Escalation) RiskLevel {
	if len(e.Reasons()) > 0 {
		return max(level, RiskCritical)
	}
	return level
}

// ClassifyRisk is BaselineRisk followed by Escalate.
func ClassifyRisk(density, stampedeProbability float64, e Escalation) RiskLevel {
	return Escalate(BaselineRisk(density, stampedeProbability), e)
}
