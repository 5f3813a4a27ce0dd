package l3motion

import "github.com/banshee-data/crowd.report/internal/crowd/l1decode"

// State is the previous-frame person snapshot for one video source.
//
// Each source owns exactly one State and passes it to every Track call.
// State is not safe for concurrent use; the pipeline guarantees at most one
// in-flight Track per State.
type State struct {
	previous []l1decode.Detection
	frames   uint64
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Previous returns a copy of the person detections from the last frame.
func (s *State) Previous() []l1decode.Detection {
	out := make([]l1decode.Detection, len(s.previous))
	copy(out, s.previous)
	return out
}

// Len returns the number of retained previous-frame persons.
func (s *State) Len() int {
	return len(s.previous)
}

// Frames returns how many frames have been tracked through this State.
func (s *State) Frames() uint64 {
	return s.frames
}

// Reset clears the snapshot, as if no frame had been processed.
func (s *State) Reset() {
	s.previous = nil
	s.frames = 0
}

// replace overwrites the snapshot with people. The slice is copied so the
// caller may reuse its buffer.
func (s *State) replace(people []l1decode.Detection) {
	s.previous = append(s.previous[:0:0], people...)
	s.frames++
}
