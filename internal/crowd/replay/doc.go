// Package replay implements the inference boundary from recorded detector
// output.
//
// A recording is a JSON-lines file; each value holds one raw output tensor
// in the attribute-major layout plus the source frame size and an optional
// audio level. A Player serves the recording as both the FrameSource and
// the InferenceEngine of one pipeline, so several sources can replay the
// same recording independently.
package replay
