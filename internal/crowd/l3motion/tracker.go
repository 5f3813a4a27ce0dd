package l3motion

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
)

// TrackerConfig holds configuration parameters for the frame tracker.
type TrackerConfig struct {
	MatchDistance          float64 // Max centroid distance (0-1000 units) for a match, exclusive
	AgitationNormalization float64 // Average displacement giving agitation 1.0
	CounterFlowAngleFactor float64 // Counter-flow threshold as a multiple of π
	MinCounterFlowVectors  int     // Vectors needed before flow direction is computed
}

// DefaultTrackerConfig returns the production tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.EmptyTuningConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		MatchDistance:          cfg.GetMatchDistance(),
		AgitationNormalization: cfg.GetAgitationNormalization(),
		CounterFlowAngleFactor: cfg.GetCounterFlowAngleFactor(),
		MinCounterFlowVectors:  cfg.GetMinCounterFlowVectors(),
	}
}

// CounterFlowThreshold returns the counter-flow angular threshold in radians.
func (c TrackerConfig) CounterFlowThreshold() float64 {
	return math.Pi * c.CounterFlowAngleFactor
}

// Vector is a centroid displacement between consecutive frames.
type Vector struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Magnitude returns the Euclidean length of the vector.
func (v Vector) Magnitude() float64 {
	return math.Hypot(v.DX, v.DY)
}

// Angle returns the vector direction in radians, in (-π, π].
func (v Vector) Angle() float64 {
	return math.Atan2(v.DY, v.DX)
}

// Match links one current person to its nearest previous-frame person.
type Match struct {
	CurrentID  string
	PreviousID string
	Vector     Vector
	Distance   float64
}

// Motion is the tracker output for one frame.
type Motion struct {
	Matches   []Match // One per matched current person, in current-frame order
	Unmatched int     // Current persons with no previous person in range

	AvgDisplacement  float64 // Mean matched distance; 0 with no matches
	AgitationLevel   float64 // min(1, AvgDisplacement / normalisation)
	CounterFlowCount int     // Vectors deviating from the mean flow beyond the threshold
	FlowDirectionRad float64 // Mean flow angle; 0 below MinCounterFlowVectors
	FlowDirectionDeg float64 // FlowDirectionRad in degrees
}

// Vectors returns the displacement vectors of all matches.
func (m Motion) Vectors() []Vector {
	out := make([]Vector, len(m.Matches))
	for i, match := range m.Matches {
		out[i] = match.Vector
	}
	return out
}

// Tracker associates person detections between consecutive frames. It
// holds only configuration; per-source state lives in State.
type Tracker struct {
	Config TrackerConfig
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{Config: cfg}
}

// Track matches the person detections in dets against the snapshot in
// state, computes motion statistics, then replaces the snapshot with this
// frame's persons. Non-person detections are ignored.
//
// For each current person the previous person with the smallest centroid
// distance is chosen; on equal distances the earliest previous detection
// wins. The match is kept only if that distance is below MatchDistance.
func (t *Tracker) Track(state *State, dets []l1decode.Detection) Motion {
	people := l1decode.People(dets)
	prev := state.previous

	prevX := make([]float64, len(prev))
	prevY := make([]float64, len(prev))
	for i, p := range prev {
		prevX[i], prevY[i] = p.Box.Centroid()
	}

	var motion Motion
	for _, cur := range people {
		cx, cy := cur.Box.Centroid()

		best := -1
		minDist := math.Inf(1)
		for i := range prev {
			d := math.Hypot(cx-prevX[i], cy-prevY[i])
			if d < minDist {
				minDist = d
				best = i
			}
		}

		if best < 0 || !(minDist < t.Config.MatchDistance) {
			motion.Unmatched++
			continue
		}
		motion.Matches = append(motion.Matches, Match{
			CurrentID:  cur.ID,
			PreviousID: prev[best].ID,
			Vector:     Vector{DX: cx - prevX[best], DY: cy - prevY[best]},
			Distance:   minDist,
		})
	}

	t.summarise(&motion)
	state.replace(people)
	return motion
}

// summarise fills the scalar statistics of motion from its matches.
func (t *Tracker) summarise(motion *Motion) {
	n := len(motion.Matches)
	if n == 0 {
		return
	}

	dists := make([]float64, n)
	dxs := make([]float64, n)
	dys := make([]float64, n)
	for i, m := range motion.Matches {
		dists[i] = m.Distance
		dxs[i] = m.Vector.DX
		dys[i] = m.Vector.DY
	}

	motion.AvgDisplacement = stat.Mean(dists, nil)
	if t.Config.AgitationNormalization > 0 {
		motion.AgitationLevel = math.Min(1, motion.AvgDisplacement/t.Config.AgitationNormalization)
	}

	if n < t.Config.MinCounterFlowVectors {
		return
	}

	meanAngle := math.Atan2(stat.Mean(dys, nil), stat.Mean(dxs, nil))
	threshold := t.Config.CounterFlowThreshold()
	for _, m := range motion.Matches {
		// Raw difference, no wrap-around at ±π.
		if math.Abs(m.Vector.Angle()-meanAngle) > threshold {
			motion.CounterFlowCount++
		}
	}
	motion.FlowDirectionRad = meanAngle
	motion.FlowDirectionDeg = meanAngle * 180 / math.Pi
}
