package l4metrics

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/crowd/l3motion"
)

// Derived-metric constants. These are empirical proxies, not physical units.
const (
	panicDensityFloor    = 1.0  // panic index is 0 at or below this density
	panicAgitationWeight = 0.7  // weight of agitation in the panic index
	panicDensityWeight   = 0.3  // weight of capped density in the panic index
	panicDensityCap      = 4.0  // density saturating the panic density term
	stampedeDensity      = 2.5  // density above which the steep probability curve applies
	stampedeCap          = 0.95 // maximum stampede probability
	stampedeSteepDivisor = 4.0  // probability = density / 4 above stampedeDensity
	stampedeFlatDivisor  = 12.0 // probability = density / 12 otherwise
	congestionDensity    = 2.2  // density above which congestion zones are reported
	congestionZones      = 2    // congestion zones reported above congestionDensity
	velocityPerAgitation = 2.0  // avgVelocity proxy per unit agitation
	flowRateBase         = 80   // flowRate proxy base
	flowRateSpread       = 40   // flowRate proxy adds a uniform int in [0, spread)
	audioDensityWeight   = 10.0 // audio proxy per unit density
	audioAgitationWeight = 80.0 // audio proxy per unit agitation
	audioMax             = 100.0
)

// Zone is a rectangle in normalised 0-1 frame coordinates. Bounds are
// inclusive.
type Zone struct {
	X, Y, W, H float64
}

// Contains reports whether the normalised point (nx, ny) is inside the zone.
func (z Zone) Contains(nx, ny float64) bool {
	return nx >= z.X && nx <= z.X+z.W && ny >= z.Y && ny <= z.Y+z.H
}

// CrowdMetrics is the per-frame telemetry record published to consumers.
type CrowdMetrics struct {
	PeopleCount          int            `json:"peopleCount"`
	Density              float64        `json:"density"`
	FlowRate             float64        `json:"flowRate"`
	CounterFlowCount     int            `json:"counterFlowCount"`
	AvgVelocity          float64        `json:"avgVelocity"`
	CongestionZoneCount  int            `json:"congestionZoneCount"`
	StampedeProbability  float64        `json:"stampedeProbability"`
	RiskLevel            RiskLevel      `json:"riskLevel"`
	AgitationLevel       float64        `json:"agitationLevel"`
	PanicIndex           float64        `json:"panicIndex"`
	ObjectCounts         map[string]int `json:"objectCounts"`
	AudioLevel           float64        `json:"audioLevel"`
	ZoneViolations       int            `json:"zoneViolations"`
	AverageFlowDirection float64        `json:"averageFlowDirection"`
}

// Clone returns a deep copy of m.
func (m CrowdMetrics) Clone() CrowdMetrics {
	out := m
	out.ObjectCounts = make(map[string]int, len(m.ObjectCounts))
	for k, v := range m.ObjectCounts {
		out.ObjectCounts[k] = v
	}
	return out
}

// AggregatorConfig holds configuration for the metrics aggregator.
type AggregatorConfig struct {
	DensityDivisor float64  // people per unit density
	RestrictedZone Zone     // normalised restricted rectangle
	WeaponLabels   []string // labels that force CRITICAL when present
}

// DefaultAggregatorConfig returns the production aggregator configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfigFromTuning(config.EmptyTuningConfig())
}

// AggregatorConfigFromTuning builds an AggregatorConfig from a loaded TuningConfig.
func AggregatorConfigFromTuning(cfg *config.TuningConfig) AggregatorConfig {
	z := cfg.GetRestrictedZone()
	return AggregatorConfig{
		DensityDivisor: cfg.GetDensityDivisor(),
		RestrictedZone: Zone{X: z.X, Y: z.Y, W: z.W, H: z.H},
		WeaponLabels:   cfg.GetWeaponLabels(),
	}
}

// IntSource supplies the quasi-random flowRate proxy. *rand.Rand satisfies it.
type IntSource interface {
	IntN(n int) int
}

// Input is everything the aggregator needs for one frame.
type Input struct {
	Detections  []l1decode.Detection // post-suppression detections
	Motion      l3motion.Motion      // tracker output for the same frame
	FrameWidth  int                  // source frame width in pixels
	FrameHeight int                  // source frame height in pixels

	// AudioLevel is the externally measured level (0-100). Nil derives a
	// proxy from density and agitation.
	AudioLevel *float64
}

// Aggregator turns one frame of detections and motion into CrowdMetrics.
// It is not safe for concurrent use because of its random source; each
// video source owns one.
type Aggregator struct {
	Config  AggregatorConfig
	weapons []string
	rng     IntSource
}

// NewAggregator creates an aggregator. A nil rng is replaced with a
// time-seeded PCG source.
func NewAggregator(cfg AggregatorConfig, rng IntSource) *Aggregator {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>32))
	}
	return &Aggregator{
		Config:  cfg,
		weapons: append([]string(nil), cfg.WeaponLabels...),
		rng:     rng,
	}
}

// Aggregate computes the metrics record for one frame.
func (a *Aggregator) Aggregate(in Input) CrowdMetrics {
	counts := make(map[string]int)
	for _, d := range in.Detections {
		counts[d.Label]++
	}
	people := counts[l1decode.LabelPerson]

	zoneViolations := a.zoneViolations(in)

	var density float64
	if a.Config.DensityDivisor > 0 {
		density = float64(people) / a.Config.DensityDivisor
	}
	agitation := in.Motion.AgitationLevel

	panicIndex := PanicIndex(density, agitation)
	prob := StampedeProbability(density)

	var weapons []string
	for _, w := range a.weapons {
		if counts[w] > 0 {
			weapons = append(weapons, w)
		}
	}
	risk := ClassifyRisk(density, prob, Escalation{
		PanicIndex:       panicIndex,
		ZoneViolations:   zoneViolations,
		CounterFlowCount: in.Motion.CounterFlowCount,
		WeaponLabels:     weapons,
	})

	congestion := 0
	if density > congestionDensity {
		congestion = congestionZones
	}

	return CrowdMetrics{
		PeopleCount:          people,
		Density:              density,
		FlowRate:             float64(flowRateBase + a.rng.IntN(flowRateSpread)),
		CounterFlowCount:     in.Motion.CounterFlowCount,
		AvgVelocity:          agitation * velocityPerAgitation,
		CongestionZoneCount:  congestion,
		StampedeProbability:  prob,
		RiskLevel:            risk,
		AgitationLevel:       agitation,
		PanicIndex:           panicIndex,
		ObjectCounts:         counts,
		AudioLevel:           AudioLevel(in.AudioLevel, density, agitation),
		ZoneViolations:       zoneViolations,
		AverageFlowDirection: in.Motion.FlowDirectionDeg,
	}
}

// zoneViolations counts person centroids inside the restricted zone. The
// 0-1000 centroid is divided by the frame size in pixels to normalise it.
func (a *Aggregator) zoneViolations(in Input) int {
	if in.FrameWidth <= 0 || in.FrameHeight <= 0 {
		return 0
	}
	w, h := float64(in.FrameWidth), float64(in.FrameHeight)
	n := 0
	for _, d := range in.Detections {
		if !d.IsPerson() {
			continue
		}
		cx, cy := d.Box.Centroid()
		if a.Config.RestrictedZone.Contains(cx/w, cy/h) {
			n++
		}
	}
	return n
}

// PanicIndex blends agitation with capped density. It is 0 unless density
// exceeds 1.
func PanicIndex(density, agitation float64) float64 {
	if density <= panicDensityFloor {
		return 0
	}
	return agitation*panicAgitationWeight + math.Min(density, panicDensityCap)/panicDensityCap*panicDensityWeight
}

// StampedeProbability maps density to a stampede probability in [0, 0.95]
// for densities up to 11.4; the flat branch is never capped.
func StampedeProbability(density float64) float64 {
	if density > stampedeDensity {
		return math.Min(stampedeCap, density/stampedeSteepDivisor)
	}
	return density / stampedeFlatDivisor
}

// AudioLevel clamps a supplied level to [0, 100], or derives the proxy
// min(100, density*10 + agitation*80) when none is supplied.
func AudioLevel(supplied *float64, density, agitation float64) float64 {
	if supplied != nil && !math.IsNaN(*supplied) {
		return math.Max(0, math.Min(audioMax, *supplied))
	}
	return math.Min(audioMax, density*audioDensityWeight+agitation*audioAgitationWeight)
}
