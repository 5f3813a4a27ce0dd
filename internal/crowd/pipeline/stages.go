package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/crowd/l4metrics"
)

var (
	// ErrTickInFlight is returned when a frame is offered to a pipeline
	// whose previous frame is still being processed. The tick is skipped.
	ErrTickInFlight = errors.New("pipeline: previous frame still in flight")

	// ErrInference wraps a failure reported by the inference engine.
	ErrInference = errors.New("pipeline: inference failed")
)

// Frame is one captured video frame offered to a pipeline.
type Frame struct {
	// Pixels is the model input buffer, 3 x size x size float32 in CHW
	// order. The pipeline passes it to the engine untouched.
	Pixels []float32

	Width  int // source frame width in pixels
	Height int // source frame height in pixels

	// AudioLevel is an externally measured level (0-100), or nil to derive
	// a proxy from density and agitation.
	AudioLevel *float64
}

// FrameSource supplies frames to the Runner. NextFrame returns io.EOF when
// the source is exhausted.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// InferenceEngine runs the object detector on a pixel buffer and returns the
// raw output tensor. The core has no opinion on how the engine works, only
// on the attribute-major output layout.
type InferenceEngine interface {
	Infer(ctx context.Context, pixels []float32) (l1decode.RawOutput, error)
}

// SnapshotSink receives every processed frame. Implementations must treat
// the snapshot as read-only; each sink gets its own copy.
type SnapshotSink interface {
	RecordSnapshot(ctx context.Context, snap Snapshot) error
}

// SinkFunc adapts a function to SnapshotSink.
type SinkFunc func(ctx context.Context, snap Snapshot) error

// RecordSnapshot calls f.
func (f SinkFunc) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// Snapshot is the published result of one processed frame: the
// post-suppression detections and the metrics derived from them.
type Snapshot struct {
	FrameID    uuid.UUID              `json:"frame_id"`
	SourceID   string                 `json:"source_id"`
	Time       time.Time              `json:"time"`
	Detections []l1decode.Detection   `json:"detections"`
	Metrics    l4metrics.CrowdMetrics `json:"metrics"`

	// Degraded is set when the frame failed closed (malformed output or an
	// engine error). Its metrics are the zero-detection defaults.
	Degraded bool `json:"degraded,omitempty"`

	// Seeded is set when the empty decode was replaced by the seed frame.
	Seeded bool `json:"seeded,omitempty"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Detections = append([]l1decode.Detection(nil), s.Detections...)
	if out.Detections == nil {
		out.Detections = []l1decode.Detection{}
	}
	out.Metrics = s.Metrics.Clone()
	return out
}
