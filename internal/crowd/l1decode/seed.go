package l1decode

import "fmt"

// seedFrameSize is the number of synthetic persons in a seed frame.
const seedFrameSize = 5

// SeedFrame returns a fixed synthetic frame of five persons laid out in a
// diagonal row. The pipeline substitutes it for an empty decode when
// re-seeding is enabled so downstream consumers keep receiving motion.
func SeedFrame() []Detection {
	dets := make([]Detection, seedFrameSize)
	for i := range dets {
		fi := float64(i)
		dets[i] = Detection{
			ID:         fmt.Sprintf("sim-%d", i),
			Box:        Box{YMin: 150 + fi*20, XMin: 100 + fi*120, YMax: 450 + fi*20, XMax: 280 + fi*120},
			Label:      LabelPerson,
			Confidence: 0.95,
			Index:      i,
		}
	}
	return dets
}
