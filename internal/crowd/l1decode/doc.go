// Package l1decode owns Layer 1 (Detections) of the crowd data model.
//
// Responsibilities: the Detection and Box value types, the COCO class
// vocabulary and safety allow-list, and decoding of raw detector output
// tensors into candidate detections.
// Key types: Detection, Box, RawOutput, Decoder.
//
// Dependency rule: L1 depends on nothing above it. Decoding never logs;
// failures are reported as errors so the pipeline can fail the frame closed.
package l1decode
