package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/timeutil"
)

// scriptedSource yields a fixed number of frames, then io.EOF.
type scriptedSource struct {
	mu     sync.Mutex
	frames int
	pulled int
}

func (s *scriptedSource) NextFrame(context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pulled >= s.frames {
		return Frame{}, io.EOF
	}
	s.pulled++
	return testFrame, nil
}

func (s *scriptedSource) Pulled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulled
}

// staticEngine always reports the same two people.
var staticEngine = engineFunc(func(context.Context, []float32) (l1decode.RawOutput, error) {
	return tensor(personAt(100, 100), personAt(400, 400)), nil
})

// driveUntil advances clock in steps until done yields or the step budget
// is exhausted.
func driveUntil(t *testing.T, clock *timeutil.MockClock, step time.Duration, done <-chan error) error {
	t.Helper()
	for i := 0; i < 5000; i++ {
		select {
		case err := <-done:
			return err
		default:
		}
		clock.Advance(step)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("runner did not finish")
	return nil
}

func TestRunner_ProcessesSourcesUntilExhausted(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	fg := newTestPipeline(t, func(cfg *Config) {
		cfg.SourceID = "foreground"
		cfg.Engine = staticEngine
	})
	bg := newTestPipeline(t, func(cfg *Config) {
		cfg.SourceID = "background"
		cfg.Engine = staticEngine
	})
	fgFrames := &scriptedSource{frames: 4}
	bgFrames := &scriptedSource{frames: 3}

	r := NewRunner(clock)
	require.NoError(t, r.Add(Source{Pipeline: fg, Frames: fgFrames, Interval: 150 * time.Millisecond}))
	require.NoError(t, r.Add(Source{Pipeline: bg, Frames: bgFrames, Interval: 200 * time.Millisecond}))

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.Eventually(t, func() bool { return clock.Tickers() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, driveUntil(t, clock, 50*time.Millisecond, done))
	assert.Equal(t, uint64(4), fg.Stats().Processed)
	assert.Equal(t, uint64(3), bg.Stats().Processed)
	assert.Equal(t, 4, fgFrames.Pulled())
	assert.Equal(t, 2, fg.State().Len())
}

func TestRunner_MaxFrames(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := newTestPipeline(t, func(cfg *Config) { cfg.Engine = staticEngine })
	frames := &scriptedSource{frames: 100}

	r := NewRunner(clock)
	require.NoError(t, r.Add(Source{Pipeline: p, Frames: frames, Interval: 150 * time.Millisecond, MaxFrames: 5}))

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, driveUntil(t, clock, 150*time.Millisecond, done))
	assert.Equal(t, uint64(5), p.Stats().Processed)
	assert.Equal(t, 5, frames.Pulled())
}

func TestRunner_SkipsTickWhileFrameInFlight(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	p := newTestPipeline(t, func(cfg *Config) {
		cfg.Engine = engineFunc(func(context.Context, []float32) (l1decode.RawOutput, error) {
			started <- struct{}{}
			<-release
			return tensor(personAt(100, 100)), nil
		})
	})
	frames := &scriptedSource{frames: 100}

	r := NewRunner(clock)
	require.NoError(t, r.Add(Source{Pipeline: p, Frames: frames, Interval: 150 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	clock.Advance(150 * time.Millisecond)
	<-started

	clock.Advance(150 * time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Skipped >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, frames.Pulled(), "a skipped tick must not consume a frame")

	close(release)
	require.Eventually(t, func() bool { return !p.InFlight() }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.Equal(t, uint64(1), p.Stats().Processed)
}

type failingSource struct{ calls int }

func (f *failingSource) NextFrame(context.Context) (Frame, error) {
	f.calls++
	if f.calls > 2 {
		return Frame{}, io.EOF
	}
	return Frame{}, errors.New("camera busy")
}

func TestRunner_FrameSourceErrorsAreNotFatal(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := newTestPipeline(t, func(cfg *Config) { cfg.Engine = staticEngine })
	src := &failingSource{}

	r := NewRunner(clock)
	require.NoError(t, r.Add(Source{Pipeline: p, Frames: src, Interval: 100 * time.Millisecond}))

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, driveUntil(t, clock, 100*time.Millisecond, done))
	assert.Zero(t, p.Stats().Processed)
}

func TestRunner_AddValidation(t *testing.T) {
	t.Parallel()
	r := NewRunner(nil)
	p := newTestPipeline(t, nil)
	frames := &scriptedSource{}

	assert.Error(t, r.Add(Source{Frames: frames, Interval: time.Second}))
	assert.Error(t, r.Add(Source{Pipeline: p, Interval: time.Second}))
	assert.Error(t, r.Add(Source{Pipeline: p, Frames: frames}))
	require.NoError(t, r.Add(Source{Pipeline: p, Frames: frames, Interval: time.Second}))
	assert.Error(t, r.Add(Source{Pipeline: p, Frames: frames, Interval: time.Second}), "pipelines cannot be shared")
	assert.NotEqual(t, [16]byte{}, [16]byte(r.SessionID()))
}
