package replay

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/crowd/pipeline"
)

// ErrNoCurrentFrame is returned by Infer before the first NextFrame.
var ErrNoCurrentFrame = errors.New("replay: no current frame")

// Player replays a Recording for one source. NextFrame advances to the next
// record and Infer returns that record's tensor. Recorded frames carry no
// pixels; the buffer passed to Infer is ignored.
type Player struct {
	rec  *Recording
	loop bool

	mu      sync.Mutex
	next    int
	current *Record
	served  uint64
}

var (
	_ pipeline.FrameSource     = (*Player)(nil)
	_ pipeline.InferenceEngine = (*Player)(nil)
)

// NewPlayer creates a player over rec. With loop set the player wraps to
// the first record instead of reporting io.EOF.
func NewPlayer(rec *Recording, loop bool) *Player {
	return &Player{rec: rec, loop: loop}
}

// NextFrame advances to the next record.
func (p *Player) NextFrame(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.rec.Records) {
		if !p.loop || len(p.rec.Records) == 0 {
			return pipeline.Frame{}, io.EOF
		}
		p.next = 0
	}
	r := &p.rec.Records[p.next]
	p.next++
	p.current = r
	p.served++

	return pipeline.Frame{
		Width:      r.FrameWidth,
		Height:     r.FrameHeight,
		AudioLevel: r.AudioLevel,
	}, nil
}

// Infer returns the tensor of the frame last returned by NextFrame.
func (p *Player) Infer(ctx context.Context, _ []float32) (l1decode.RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return l1decode.RawOutput{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return l1decode.RawOutput{}, ErrNoCurrentFrame
	}
	return p.current.Output(), nil
}

// Served returns the number of frames handed out so far.
func (p *Player) Served() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.served
}
