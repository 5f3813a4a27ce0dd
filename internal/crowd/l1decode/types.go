package l1decode

import (
	"encoding/json"
	"fmt"
)

// Box is an axis-aligned bounding box in the normalised 0-1000 output space,
// ordered (ymin, xmin, ymax, xmax) to match the box_2d wire order.
type Box struct {
	YMin float64
	XMin float64
	YMax float64
	XMax float64
}

// Centroid returns the box centre as (x, y).
func (b Box) Centroid() (x, y float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// Area returns the box area, or 0 for an inverted box.
func (b Box) Area() float64 {
	w := b.XMax - b.XMin
	h := b.YMax - b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Ordered reports whether ymin <= ymax and xmin <= xmax.
func (b Box) Ordered() bool {
	return b.YMin <= b.YMax && b.XMin <= b.XMax
}

// MarshalJSON encodes the box as [ymin, xmin, ymax, xmax].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.YMin, b.XMin, b.YMax, b.XMax})
}

// UnmarshalJSON decodes a [ymin, xmin, ymax, xmax] array.
func (b *Box) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 4 {
		return fmt.Errorf("box_2d must have 4 elements, got %d", len(arr))
	}
	b.YMin, b.XMin, b.YMax, b.XMax = arr[0], arr[1], arr[2], arr[3]
	return nil
}

// Detection is one object found in a single frame. Detections are values;
// the pipeline hands out copies and nothing mutates them after decoding.
type Detection struct {
	ID         string  `json:"id"`
	Box        Box     `json:"box_2d"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`

	// Index is the anchor index (or input position) the detection came
	// from. Suppression uses it to break confidence ties.
	Index int `json:"-"`
}

// IsPerson reports whether the detection is labelled person.
func (d Detection) IsPerson() bool {
	return d.Label == LabelPerson
}

// People returns the person-labelled subset of dets, in input order.
func People(dets []Detection) []Detection {
	people := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.IsPerson() {
			people = append(people, d)
		}
	}
	return people
}

// RawOutput is the detector output tensor handed over by the inference
// engine: flat float32 data plus its shape.
type RawOutput struct {
	Data  []float32 `json:"data"`
	Shape []int     `json:"shape"`
}
