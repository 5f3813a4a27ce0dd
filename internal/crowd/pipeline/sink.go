package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// JSONSink writes each snapshot as one JSON object per line.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink creates a sink writing JSON lines to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

// RecordSnapshot encodes snap as a single line.
func (s *JSONSink) RecordSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(snap)
}
