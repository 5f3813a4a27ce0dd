package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/crowd/l2suppress"
	"github.com/banshee-data/crowd.report/internal/crowd/l3motion"
	"github.com/banshee-data/crowd.report/internal/crowd/l4metrics"
	"github.com/banshee-data/crowd.report/internal/timeutil"
)

// Config holds dependencies for one FramePipeline.
type Config struct {
	SourceID string
	Tuning   *config.TuningConfig // nil uses the built-in defaults
	Engine   InferenceEngine      // required for TryProcess; unused by ProcessOutput
	Sinks    []SnapshotSink       // each receives a copy of every snapshot
	Clock    timeutil.Clock       // nil uses the real clock

	// Live marks the source as a live feed. Live sources record every
	// frame in History; others only record frames with people in them.
	Live bool

	// Rand drives the flowRate proxy. Nil uses a time-seeded source.
	Rand l4metrics.IntSource
}

// Stats counts frames handled by a pipeline.
type Stats struct {
	Processed uint64 // frames that produced a snapshot, degraded included
	Degraded  uint64 // frames that failed closed
	Seeded    uint64 // empty frames replaced by the seed frame
	Skipped   uint64 // offers rejected because a frame was in flight
}

// FramePipeline runs decode, suppress, track and aggregate for one video
// source. It owns that source's tracker state; at most one frame is in
// flight at a time.
type FramePipeline struct {
	sourceID    string
	engine      InferenceEngine
	sinks       []SnapshotSink
	clock       timeutil.Clock
	live        bool
	seedOnEmpty bool

	decoder    *l1decode.Decoder
	suppressor l2suppress.SuppressorConfig
	tracker    *l3motion.Tracker
	state      *l3motion.State
	aggregator *l4metrics.Aggregator
	history    *History

	inFlight  atomic.Bool
	processed atomic.Uint64
	degraded  atomic.Uint64
	seeded    atomic.Uint64
	skipped   atomic.Uint64
}

// NewFramePipeline builds a pipeline with a fresh tracker state.
func NewFramePipeline(cfg Config) *FramePipeline {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	p := &FramePipeline{
		sourceID:    cfg.SourceID,
		engine:      cfg.Engine,
		sinks:       append([]SnapshotSink(nil), cfg.Sinks...),
		clock:       clock,
		live:        cfg.Live,
		seedOnEmpty: tuning.GetSeedOnEmpty(),
		decoder:     l1decode.NewDecoder(l1decode.DecoderConfigFromTuning(tuning)),
		suppressor:  l2suppress.SuppressorConfigFromTuning(tuning),
		tracker:     l3motion.NewTracker(l3motion.TrackerConfigFromTuning(tuning)),
		state:       l3motion.NewState(),
		aggregator:  l4metrics.NewAggregator(l4metrics.AggregatorConfigFromTuning(tuning), cfg.Rand),
		history:     NewHistory(tuning.GetHistorySize()),
	}
	diagf("source %s: pipeline created (live=%t seed_on_empty=%t history=%d)",
		p.sourceID, p.live, p.seedOnEmpty, p.history.Cap())
	return p
}

// SourceID returns the source this pipeline serves.
func (p *FramePipeline) SourceID() string { return p.sourceID }

// History returns the pipeline's snapshot ring.
func (p *FramePipeline) History() *History { return p.history }

// State returns the tracker state owned by this pipeline.
func (p *FramePipeline) State() *l3motion.State { return p.state }

// Stats returns a copy of the frame counters.
func (p *FramePipeline) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Degraded:  p.degraded.Load(),
		Seeded:    p.seeded.Load(),
		Skipped:   p.skipped.Load(),
	}
}

// InFlight reports whether a frame is currently being processed.
func (p *FramePipeline) InFlight() bool { return p.inFlight.Load() }

// acquire claims the in-flight slot or counts a skipped offer.
func (p *FramePipeline) acquire() bool {
	if p.inFlight.CompareAndSwap(false, true) {
		return true
	}
	p.skipped.Add(1)
	return false
}

func (p *FramePipeline) release() { p.inFlight.Store(false) }

// TryProcess runs inference on frame and processes the result. It returns
// ErrTickInFlight without doing anything when a frame is already in
// flight. A frame that fails closed still returns a valid degraded snapshot
// together with the error.
func (p *FramePipeline) TryProcess(ctx context.Context, frame Frame) (Snapshot, error) {
	if !p.acquire() {
		return Snapshot{}, ErrTickInFlight
	}
	defer p.release()
	return p.infer(ctx, frame)
}

// TryProcessFrom pulls the next frame from src and processes it. The frame
// is only pulled once the in-flight slot is held, so skipped ticks never
// consume frames. Errors from src are returned unchanged.
func (p *FramePipeline) TryProcessFrom(ctx context.Context, src FrameSource) (Snapshot, error) {
	if !p.acquire() {
		return Snapshot{}, ErrTickInFlight
	}
	defer p.release()

	frame, err := src.NextFrame(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return p.infer(ctx, frame)
}

// ProcessOutput processes a raw output tensor the caller already obtained
// from an engine. It shares the in-flight guard with TryProcess.
func (p *FramePipeline) ProcessOutput(ctx context.Context, out l1decode.RawOutput, frame Frame) (Snapshot, error) {
	if !p.acquire() {
		return Snapshot{}, ErrTickInFlight
	}
	defer p.release()
	return p.process(ctx, out, nil, frame)
}

func (p *FramePipeline) infer(ctx context.Context, frame Frame) (Snapshot, error) {
	if p.engine == nil {
		return p.process(ctx, l1decode.RawOutput{}, errors.New("no inference engine configured"), frame)
	}
	out, err := p.engine.Infer(ctx, frame.Pixels)
	return p.process(ctx, out, err, frame)
}

// process is the strictly sequential decode, suppress, track, aggregate
// chain. The caller holds the in-flight slot.
func (p *FramePipeline) process(ctx context.Context, out l1decode.RawOutput, inferErr error, frame Frame) (Snapshot, error) {
	snap := Snapshot{
		FrameID:  uuid.New(),
		SourceID: p.sourceID,
		Time:     p.clock.Now(),
	}
	input := l4metrics.Input{
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
		AudioLevel:  frame.AudioLevel,
	}

	var frameErr error
	dets, err := p.decoder.Decode(out)
	switch {
	case inferErr != nil:
		frameErr = fmt.Errorf("source %s: %w: %w", p.sourceID, ErrInference, inferErr)
	case errors.Is(err, l1decode.ErrMalformedOutput):
		frameErr = fmt.Errorf("source %s: %w", p.sourceID, err)
	case errors.Is(err, l1decode.ErrNoCandidates) && p.seedOnEmpty:
		dets = l1decode.SeedFrame()
		snap.Seeded = true
	}

	if frameErr != nil {
		// Fail closed: zero detections and the tracker snapshot is left alone.
		snap.Degraded = true
		snap.Detections = []l1decode.Detection{}
		snap.Metrics = p.aggregator.Aggregate(input)
		p.degraded.Add(1)
		opsf("source %s: frame %s failed closed: %v", p.sourceID, snap.FrameID, frameErr)
	} else {
		kept := l2suppress.Suppress(dets, p.suppressor)
		input.Detections = kept
		input.Motion = p.tracker.Track(p.state, kept)
		snap.Detections = kept
		snap.Metrics = p.aggregator.Aggregate(input)
		if snap.Seeded {
			p.seeded.Add(1)
		}
	}
	p.processed.Add(1)

	if snap.Metrics.PeopleCount > 0 || p.live {
		p.history.Append(snap)
	}
	p.publish(ctx, snap)

	tracef("source %s: frame %s people=%d density=%.3f agitation=%.3f risk=%s degraded=%t",
		p.sourceID, snap.FrameID, snap.Metrics.PeopleCount, snap.Metrics.Density,
		snap.Metrics.AgitationLevel, snap.Metrics.RiskLevel, snap.Degraded)
	return snap, frameErr
}

// publish hands a copy of snap to every sink. Sink errors are logged and
// never fail the frame.
func (p *FramePipeline) publish(ctx context.Context, snap Snapshot) {
	for _, sink := range p.sinks {
		if err := sink.RecordSnapshot(ctx, snap.Clone()); err != nil {
			opsf("source %s: sink error for frame %s: %v", p.sourceID, snap.FrameID, err)
		}
	}
}
