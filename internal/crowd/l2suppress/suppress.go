package l2suppress

import (
	"sort"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
)

// SuppressorConfig holds configuration for non-maximum suppression.
type SuppressorConfig struct {
	IoUThreshold  float64 // Candidates overlapping a kept box by more than this are removed
	MaxDetections int     // Cap on the kept set; <= 0 means unlimited
}

// DefaultSuppressorConfig returns the production suppressor configuration.
func DefaultSuppressorConfig() SuppressorConfig {
	return SuppressorConfigFromTuning(config.EmptyTuningConfig())
}

// SuppressorConfigFromTuning builds a SuppressorConfig from a loaded TuningConfig.
func SuppressorConfigFromTuning(cfg *config.TuningConfig) SuppressorConfig {
	return SuppressorConfig{
		IoUThreshold:  cfg.GetIoUThreshold(),
		MaxDetections: cfg.GetMaxDetections(),
	}
}

// IoU returns the intersection-over-union of two boxes, in [0, 1].
// Boxes that do not overlap, or only touch, score 0. Two identical
// zero-area boxes score 1.
func IoU(a, b l1decode.Box) float64 {
	xLeft := max(a.XMin, b.XMin)
	yTop := max(a.YMin, b.YMin)
	xRight := min(a.XMax, b.XMax)
	yBottom := min(a.YMax, b.YMax)

	if xRight < xLeft || yBottom < yTop {
		return 0
	}

	intersection := (xRight - xLeft) * (yBottom - yTop)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		if a == b {
			return 1
		}
		return 0
	}
	iou := intersection / union
	if iou > 1 {
		return 1
	}
	return iou
}

// Suppress performs greedy non-maximum suppression.
//
// Candidates are ordered by confidence descending, ties broken by ascending
// Index so the output is reproducible for identical input. The best
// remaining candidate is kept and every remaining candidate whose IoU with it
// exceeds the threshold is removed, until nothing remains or the kept set
// reaches MaxDetections. The input slice is not modified.
func Suppress(cands []l1decode.Detection, cfg SuppressorConfig) []l1decode.Detection {
	if len(cands) == 0 {
		return []l1decode.Detection{}
	}

	sorted := make([]l1decode.Detection, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].Index < sorted[j].Index
	})

	kept := make([]l1decode.Detection, 0, min(len(sorted), capOrLen(cfg.MaxDetections, len(sorted))))
	removed := make([]bool, len(sorted))
	for i := range sorted {
		if removed[i] {
			continue
		}
		current := sorted[i]
		kept = append(kept, current)
		if cfg.MaxDetections > 0 && len(kept) >= cfg.MaxDetections {
			break
		}
		for j := i + 1; j < len(sorted); j++ {
			if !removed[j] && IoU(current.Box, sorted[j].Box) > cfg.IoUThreshold {
				removed[j] = true
			}
		}
	}
	return kept
}

func capOrLen(limit, n int) int {
	if limit <= 0 {
		return n
	}
	return limit
}
