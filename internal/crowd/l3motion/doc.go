// Package l3motion owns Layer 3 (Motion) of the crowd data model.
//
// Responsibilities: frame-to-frame association of person detections by
// greedy nearest-centroid matching, per-person displacement vectors,
// agitation level, and counter-flow analysis against the mean flow.
// Key types: State (the previous-frame snapshot owned by one video source),
// Tracker, Motion.
//
// Matching is deliberately non-exclusive: several current detections may
// match the same previous detection. There is no identity persistence,
// occlusion handling or history deeper than one frame.
//
// Dependency rule: L3 may depend on L1-L2.
package l3motion
