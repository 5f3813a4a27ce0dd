package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/monitoring"
)

// maxRecordingSize caps recordings at 1 GiB. A single 8400-anchor COCO
// tensor is roughly 7 MB of JSON.
const maxRecordingSize = 1 << 30

// ErrEmptyRecording is returned when a recording holds no records.
var ErrEmptyRecording = errors.New("replay: recording has no frames")

var logf = monitoring.Component("replay")

// Record is one recorded frame.
type Record struct {
	Shape       []int     `json:"shape"`
	Data        []float32 `json:"data"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	AudioLevel  *float64  `json:"audio_level,omitempty"`
}

// Output returns the record's tensor as decoder input.
func (r Record) Output() l1decode.RawOutput {
	return l1decode.RawOutput{Data: r.Data, Shape: r.Shape}
}

// Recording is an in-memory sequence of recorded frames.
type Recording struct {
	Records []Record
}

// Read decodes a recording from r. Values may be separated by any JSON
// whitespace, so both JSON lines and concatenated objects are accepted.
func Read(r io.Reader) (*Recording, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	rec := &Recording{}
	for {
		var record Record
		err := dec.Decode(&record)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay: record %d: %w", len(rec.Records), err)
		}
		rec.Records = append(rec.Records, record)
	}
	if len(rec.Records) == 0 {
		return nil, ErrEmptyRecording
	}
	return rec, nil
}

// Load reads the recording at path from fsys.
func Load(fsys fsutil.FileSystem, path string) (*Recording, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if info.Size() > maxRecordingSize {
		return nil, fmt.Errorf("replay: %s is %d bytes, limit is %d", path, info.Size(), maxRecordingSize)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	rec, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logf("loaded %d frame(s) from %s", len(rec.Records), path)
	return rec, nil
}

// Write encodes records to w as JSON lines.
func Write(w io.Writer, records ...Record) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("replay: record %d: %w", i, err)
		}
	}
	return nil
}

// Save writes records to path on fsys.
func Save(fsys fsutil.FileSystem, path string, records ...Record) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, records...); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("replay: %w", err)
	}
	return f.Close()
}
