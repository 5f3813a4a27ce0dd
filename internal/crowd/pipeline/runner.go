package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/timeutil"
)

// Source binds a pipeline to the frames it consumes and its tick interval.
type Source struct {
	Pipeline *FramePipeline
	Frames   FrameSource
	Interval time.Duration // tick period, e.g. 150ms foreground, 200ms background

	// MaxFrames stops the source after this many frames have been pulled.
	// Zero means run until the frame source is exhausted or the context ends.
	MaxFrames uint64
}

// Runner drives a set of sources from independent tickers. Every tick
// starts the source's next frame unless the previous one is still in
// flight, in which case the tick is skipped.
type Runner struct {
	clock     timeutil.Clock
	sessionID uuid.UUID

	mu      sync.Mutex
	sources []Source
	running bool
}

// NewRunner creates a runner. A nil clock uses the real clock.
func NewRunner(clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{clock: clock, sessionID: uuid.New()}
}

// SessionID identifies this runner instance in logs.
func (r *Runner) SessionID() uuid.UUID { return r.sessionID }

// Add registers a source. Sources must be added before Run and must not
// share a FramePipeline.
func (r *Runner) Add(src Source) error {
	if src.Pipeline == nil {
		return errors.New("runner: source has no pipeline")
	}
	if src.Frames == nil {
		return fmt.Errorf("runner: source %s has no frame source", src.Pipeline.SourceID())
	}
	if src.Interval <= 0 {
		return fmt.Errorf("runner: source %s: interval must be positive, got %v", src.Pipeline.SourceID(), src.Interval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runner: cannot add sources while running")
	}
	for _, existing := range r.sources {
		if existing.Pipeline == src.Pipeline {
			return fmt.Errorf("runner: pipeline for source %s registered twice", src.Pipeline.SourceID())
		}
	}
	r.sources = append(r.sources, src)
	return nil
}

// Run ticks every source until ctx is done or every source is exhausted.
// It waits for in-flight frames before returning. Run returns nil when all
// sources finished on their own and ctx.Err() otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("runner: already running")
	}
	r.running = true
	sources := append([]Source(nil), r.sources...)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	diagf("runner %s: starting %d source(s)", r.sessionID, len(sources))

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			r.runSource(ctx, src)
		}(src)
	}
	wg.Wait()

	diagf("runner %s: stopped", r.sessionID)
	return ctx.Err()
}

func (r *Runner) runSource(ctx context.Context, src Source) {
	id := src.Pipeline.SourceID()
	ticker := r.clock.NewTicker(src.Interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	frames := src.Frames
	if src.MaxFrames > 0 {
		frames = &limitedFrames{src: frames, remaining: src.MaxFrames}
	}

	diagf("source %s: ticking every %v", id, src.Interval)
	for {
		select {
		case <-ctx.Done():
			diagf("source %s: context done: %v", id, ctx.Err())
			return
		case <-done:
			stats := src.Pipeline.Stats()
			diagf("source %s: finished (processed=%d degraded=%d skipped=%d)",
				id, stats.Processed, stats.Degraded, stats.Skipped)
			return
		case <-ticker.C():
			if src.Pipeline.InFlight() {
				// TryProcessFrom re-checks atomically.
				src.Pipeline.skipped.Add(1)
				opsf("source %s: tick skipped, previous frame in flight", id)
				continue
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				if r.tick(ctx, src.Pipeline, frames) {
					finish()
				}
			}()
		}
	}
}

// tick processes one frame and reports whether the source is finished.
func (r *Runner) tick(ctx context.Context, p *FramePipeline, frames FrameSource) bool {
	id := p.SourceID()
	_, err := p.TryProcessFrom(ctx, frames)
	switch {
	case errors.Is(err, ErrTickInFlight):
		opsf("source %s: tick skipped, previous frame in flight", id)
		return false
	case errors.Is(err, io.EOF):
		diagf("source %s: frame source exhausted", id)
		return true
	case errors.Is(err, ErrInference), errors.Is(err, l1decode.ErrMalformedOutput):
		// Already logged by the pipeline; the next tick is the retry.
	case err != nil:
		if ctx.Err() != nil {
			return true
		}
		opsf("source %s: frame source error: %v", id, err)
	}
	return false
}

// limitedFrames reports io.EOF after a fixed number of frames. It is only
// called under the pipeline's in-flight slot.
type limitedFrames struct {
	src       FrameSource
	remaining uint64
}

func (l *limitedFrames) NextFrame(ctx context.Context) (Frame, error) {
	if l.remaining == 0 {
		return Frame{}, io.EOF
	}
	frame, err := l.src.NextFrame(ctx)
	if err == nil {
		l.remaining--
	}
	return frame, err
}
