package l3motion

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
)

// person returns a 20x20 person box centred on (cx, cy).
func person(id string, cx, cy float64) l1decode.Detection {
	return l1decode.Detection{
		ID:         id,
		Box:        l1decode.Box{YMin: cy - 10, XMin: cx - 10, YMax: cy + 10, XMax: cx + 10},
		Label:      l1decode.LabelPerson,
		Confidence: 0.9,
	}
}

func polar(deg, length float64) (dx, dy float64) {
	rad := deg * math.Pi / 180
	return length * math.Cos(rad), length * math.Sin(rad)
}

func TestTrack_EmptyPreviousMatchesNothing(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	cur := []l1decode.Detection{person("a", 100, 100), person("b", 500, 500), person("c", 900, 100)}
	motion := tracker.Track(state, cur)

	assert.Empty(t, motion.Matches)
	assert.Equal(t, 3, motion.Unmatched)
	assert.Zero(t, motion.AgitationLevel)
	assert.Zero(t, motion.CounterFlowCount)
	assert.Equal(t, 3, state.Len())
	assert.Equal(t, uint64(1), state.Frames())
}

func TestTrack_IdenticalFrameHasZeroMotion(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	frame := []l1decode.Detection{person("p", 100, 100)}
	tracker.Track(state, frame)
	motion := tracker.Track(state, frame)

	require.Len(t, motion.Matches, 1)
	assert.Equal(t, Vector{DX: 0, DY: 0}, motion.Matches[0].Vector)
	assert.Zero(t, motion.AgitationLevel)
	assert.Zero(t, motion.AvgDisplacement)
}

func TestTrack_AgitationNormalisation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		shift     float64
		agitation float64
		matched   bool
	}{
		{name: "ten units", shift: 10, agitation: 0.5, matched: true},
		{name: "twenty units saturates", shift: 20, agitation: 1, matched: true},
		{name: "forty units clamps", shift: 40, agitation: 1, matched: true},
		{name: "just inside match distance", shift: 99.5, agitation: 1, matched: true},
		{name: "at match distance is unmatched", shift: 100, agitation: 0, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(DefaultTrackerConfig())
			state := NewState()
			tracker.Track(state, []l1decode.Detection{person("p", 300, 300)})
			motion := tracker.Track(state, []l1decode.Detection{person("p", 300+tt.shift, 300)})

			assert.InDelta(t, tt.agitation, motion.AgitationLevel, 1e-9)
			if tt.matched {
				require.Len(t, motion.Matches, 1)
				assert.InDelta(t, tt.shift, motion.Matches[0].Vector.DX, 1e-9)
				assert.InDelta(t, tt.shift, motion.AvgDisplacement, 1e-9)
			} else {
				assert.Empty(t, motion.Matches)
				assert.Equal(t, 1, motion.Unmatched)
			}
		})
	}
}

func TestTrack_NonExclusiveMatching(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	tracker.Track(state, []l1decode.Detection{person("prev", 500, 500)})
	motion := tracker.Track(state, []l1decode.Detection{person("left", 490, 500), person("right", 510, 500)})

	require.Len(t, motion.Matches, 2)
	assert.Equal(t, "prev", motion.Matches[0].PreviousID)
	assert.Equal(t, "prev", motion.Matches[1].PreviousID)
	assert.Equal(t, []Vector{{DX: -10, DY: 0}, {DX: 10, DY: 0}}, motion.Vectors())
}

func TestTrack_TieBreakPrefersEarliestPrevious(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	tracker.Track(state, []l1decode.Detection{person("first", 480, 500), person("second", 520, 500)})
	motion := tracker.Track(state, []l1decode.Detection{person("mid", 500, 500)})

	require.Len(t, motion.Matches, 1)
	assert.Equal(t, "first", motion.Matches[0].PreviousID)
}

func TestTrack_IgnoresNonPersons(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	bag := person("bag", 100, 100)
	bag.Label = "backpack"
	tracker.Track(state, []l1decode.Detection{bag, person("p", 500, 500)})
	assert.Equal(t, 1, state.Len())
	assert.Equal(t, "p", state.Previous()[0].ID)

	motion := tracker.Track(state, []l1decode.Detection{bag})
	assert.Empty(t, motion.Matches)
	assert.Zero(t, motion.Unmatched)
	assert.Zero(t, state.Len(), "snapshot is replaced even by an empty person list")
}

func TestTrack_SnapshotHoldsOnlyLastFrame(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	tracker.Track(state, []l1decode.Detection{person("f1", 100, 100)})
	tracker.Track(state, []l1decode.Detection{person("f2", 800, 800)})
	motion := tracker.Track(state, []l1decode.Detection{person("f3", 105, 100)})

	assert.Empty(t, motion.Matches, "frame 1 must not be visible after frame 2")
	assert.Equal(t, uint64(3), state.Frames())

	state.Reset()
	assert.Zero(t, state.Len())
	assert.Zero(t, state.Frames())
}

// moved builds a previous/current frame pair where person i moves by vecs[i].
// People are spaced 200 units apart so nearest-neighbour matching pairs them
// up unambiguously.
func moved(vecs ...[2]float64) (prev, cur []l1decode.Detection) {
	for i, v := range vecs {
		x := 100 + float64(i%4)*200
		y := 100 + float64(i/4)*200
		id := fmt.Sprintf("p%d", i)
		prev = append(prev, person(id, x, y))
		cur = append(cur, person(id, x+v[0], y+v[1]))
	}
	return prev, cur
}

func TestTrack_CounterFlow(t *testing.T) {
	t.Parallel()

	t.Run("one against three", func(t *testing.T) {
		tracker := NewTracker(DefaultTrackerConfig())
		state := NewState()
		prev, cur := moved([2]float64{5, 0}, [2]float64{5, 0}, [2]float64{5, 0}, [2]float64{-5, 0})
		tracker.Track(state, prev)
		motion := tracker.Track(state, cur)

		require.Len(t, motion.Matches, 4)
		assert.Equal(t, 1, motion.CounterFlowCount)
		assert.InDelta(t, 0, motion.FlowDirectionDeg, 1e-9)
	})

	t.Run("below minimum vector count", func(t *testing.T) {
		tracker := NewTracker(DefaultTrackerConfig())
		state := NewState()
		prev, cur := moved([2]float64{5, 0}, [2]float64{-5, 5})
		tracker.Track(state, prev)
		motion := tracker.Track(state, cur)

		require.Len(t, motion.Matches, 2)
		assert.Zero(t, motion.CounterFlowCount)
		assert.Zero(t, motion.FlowDirectionDeg)
	})

	t.Run("mean direction in degrees", func(t *testing.T) {
		tracker := NewTracker(DefaultTrackerConfig())
		state := NewState()
		prev, cur := moved([2]float64{0, 5}, [2]float64{0, 5}, [2]float64{0, 5})
		tracker.Track(state, prev)
		motion := tracker.Track(state, cur)

		assert.InDelta(t, 90, motion.FlowDirectionDeg, 1e-9)
		assert.InDelta(t, math.Pi/2, motion.FlowDirectionRad, 1e-9)
		assert.Zero(t, motion.CounterFlowCount)
	})
}

// Deviations between 0.66π (118.8°) and 2π/3 (120°) count as counter-flow.
func TestTrack_CounterFlowUsesExactThreshold(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	require.InDelta(t, 0.66*math.Pi, tracker.Config.CounterFlowThreshold(), 1e-15)

	up := [2]float64{}
	up[0], up[1] = polar(119.5, 10)
	down := [2]float64{up[0], -up[1]}
	ahead := [2]float64{30, 0}

	state := NewState()
	prev, cur := moved(up, down, ahead)
	tracker.Track(state, prev)
	motion := tracker.Track(state, cur)

	require.Len(t, motion.Matches, 3)
	assert.InDelta(t, 0, motion.FlowDirectionRad, 1e-9)
	assert.Equal(t, 2, motion.CounterFlowCount)

	clean := NewTracker(TrackerConfig{
		MatchDistance:          100,
		AgitationNormalization: 20,
		CounterFlowAngleFactor: 2.0 / 3.0,
		MinCounterFlowVectors:  3,
	})
	state = NewState()
	clean.Track(state, prev)
	assert.Zero(t, clean.Track(state, cur).CounterFlowCount)
}

// The angular difference is not wrapped at ±π, so vectors on either side of
// the negative x-axis can register as counter-flow.
func TestTrack_CounterFlowRawAngleDifference(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()

	prev, cur := moved([2]float64{-10, 1}, [2]float64{-10, 1}, [2]float64{-10, -1})
	tracker.Track(state, prev)
	motion := tracker.Track(state, cur)

	require.Len(t, motion.Matches, 3)
	assert.Greater(t, motion.FlowDirectionDeg, 170.0)
	assert.Equal(t, 1, motion.CounterFlowCount)
}

func TestState_PreviousIsCopy(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(DefaultTrackerConfig())
	state := NewState()
	frame := []l1decode.Detection{person("p", 100, 100)}
	tracker.Track(state, frame)

	frame[0].ID = "mutated"
	snap := state.Previous()
	assert.Equal(t, "p", snap[0].ID)

	snap[0].ID = "mutated"
	assert.Equal(t, "p", state.Previous()[0].ID)
}
