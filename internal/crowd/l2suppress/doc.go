// Package l2suppress owns Layer 2 (Suppression) of the crowd data model.
//
// Responsibilities: intersection-over-union on axis-aligned boxes and greedy
// non-maximum suppression of overlapping candidates, with a deterministic
// tie-break and a cap on the number of kept detections.
//
// Dependency rule: L2 may depend on L1 only.
package l2suppress
