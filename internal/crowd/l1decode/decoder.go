package l1decode

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/crowd.report/internal/config"
)

// geometryAttrs is the number of leading box attributes per anchor
// (center-x, center-y, width, height) before the per-class scores.
const geometryAttrs = 4

var (
	// ErrMalformedOutput is returned when the raw output does not match the
	// expected [1, 4+C, N] layout. The frame must be dropped.
	ErrMalformedOutput = errors.New("malformed detector output")

	// ErrNoCandidates is returned, together with an empty slice, when no
	// anchor survives the confidence floor and allow-list. It is a valid
	// frame; callers may treat it as a re-seed signal.
	ErrNoCandidates = errors.New("no detection candidates")
)

// DecoderConfig holds configuration for the detection decoder.
type DecoderConfig struct {
	ConfidenceFloor float64  // Anchors with max class score <= floor are discarded
	ModelInputSize  int      // Model geometry space (pixels per side)
	OutputScale     float64  // Output coordinate space (per side)
	Labels          []string // Class vocabulary indexed by class id
	AllowedLabels   []string // Safety-relevant labels kept after decoding
}

// DefaultDecoderConfig returns the production decoder configuration.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfigFromTuning(config.EmptyTuningConfig())
}

// DecoderConfigFromTuning builds a DecoderConfig from a loaded TuningConfig.
func DecoderConfigFromTuning(cfg *config.TuningConfig) DecoderConfig {
	return DecoderConfig{
		ConfidenceFloor: cfg.GetConfidenceFloor(),
		ModelInputSize:  cfg.GetModelInputSize(),
		OutputScale:     cfg.GetOutputScale(),
		Labels:          COCOLabels,
		AllowedLabels:   cfg.GetAllowedLabels(),
	}
}

// Decoder converts raw anchor-by-class output into candidate detections.
type Decoder struct {
	cfg     DecoderConfig
	allowed LabelSet
	scale   float64
}

// NewDecoder creates a Decoder with the specified configuration.
func NewDecoder(cfg DecoderConfig) *Decoder {
	if len(cfg.Labels) == 0 {
		cfg.Labels = COCOLabels
	}
	scale := 1.0
	if cfg.ModelInputSize > 0 {
		scale = cfg.OutputScale / float64(cfg.ModelInputSize)
	}
	return &Decoder{
		cfg:     cfg,
		allowed: NewLabelSet(cfg.AllowedLabels),
		scale:   scale,
	}
}

// Config returns the decoder configuration.
func (d *Decoder) Config() DecoderConfig {
	return d.cfg
}

// dims validates the output shape and returns (attributes, anchors).
// Accepted shapes are [1, 4+C, N] and [4+C, N].
func dims(out RawOutput) (attrs, anchors int, err error) {
	shape := out.Shape
	if len(shape) == 3 {
		if shape[0] != 1 {
			return 0, 0, fmt.Errorf("%w: batch size %d, want 1", ErrMalformedOutput, shape[0])
		}
		shape = shape[1:]
	}
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("%w: shape %v, want [1, 4+C, N]", ErrMalformedOutput, out.Shape)
	}
	attrs, anchors = shape[0], shape[1]
	if attrs <= geometryAttrs || anchors <= 0 {
		return 0, 0, fmt.Errorf("%w: shape %v has no class scores or anchors", ErrMalformedOutput, out.Shape)
	}
	if len(out.Data) != attrs*anchors {
		return 0, 0, fmt.Errorf("%w: %d values for shape %v (want %d)", ErrMalformedOutput, len(out.Data), out.Shape, attrs*anchors)
	}
	return attrs, anchors, nil
}

// Decode converts one raw output tensor into candidate detections.
//
// The tensor is attribute-major: the value of attribute a for anchor i sits
// at a*N + i. Each anchor takes the class with the highest score; anchors
// scoring at or below the confidence floor, or whose label is not on the
// allow-list, are dropped. Boxes are converted from centre/size in model
// space to (ymin, xmin, ymax, xmax) in output space.
//
// On ErrMalformedOutput the returned slice is nil. On ErrNoCandidates it is
// empty but non-nil.
func (d *Decoder) Decode(out RawOutput) ([]Detection, error) {
	attrs, n, err := dims(out)
	if err != nil {
		return nil, err
	}
	data := out.Data
	numClasses := attrs - geometryAttrs

	candidates := make([]Detection, 0)
	for i := 0; i < n; i++ {
		maxScore := 0.0
		maxClass := -1
		for c := 0; c < numClasses; c++ {
			score := float64(data[(geometryAttrs+c)*n+i])
			if score > maxScore {
				maxScore = score
				maxClass = c
			}
		}
		if maxClass < 0 || !(maxScore > d.cfg.ConfidenceFloor) {
			continue
		}

		label := labelFor(d.cfg.Labels, maxClass)
		if !d.allowed.Contains(label) {
			continue
		}

		xc := float64(data[0*n+i])
		yc := float64(data[1*n+i])
		w := float64(data[2*n+i])
		h := float64(data[3*n+i])
		if !finite(xc, yc, w, h) {
			continue
		}

		y0, y1 := (yc-h/2)*d.scale, (yc+h/2)*d.scale
		x0, x1 := (xc-w/2)*d.scale, (xc+w/2)*d.scale
		candidates = append(candidates, Detection{
			ID:         fmt.Sprintf("obj-%d", i),
			Box:        Box{YMin: math.Min(y0, y1), XMin: math.Min(x0, x1), YMax: math.Max(y0, y1), XMax: math.Max(x0, x1)},
			Label:      label,
			Confidence: maxScore,
			Index:      i,
		})
	}

	if len(candidates) == 0 {
		return candidates, ErrNoCandidates
	}
	return candidates, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
