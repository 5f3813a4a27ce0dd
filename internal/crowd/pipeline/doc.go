// Package pipeline provides the per-frame crowd analysis pipeline that
// orchestrates L1 Decode through L4 Metrics.
//
// This package is the composition root: it imports from layer packages
// (l1decode, l2suppress, l3motion, l4metrics) but none of those packages
// import pipeline/. Storage and replay adapters implement the interfaces
// declared here.
//
// Each FramePipeline owns the tracker state for one logical video source and
// guarantees at most one invocation in flight. The Runner drives any number
// of pipelines from a clock ticker and skips ticks that arrive while the
// previous frame for the same source is still being processed.
package pipeline
