// Package l4metrics owns Layer 4 (Metrics) of the crowd data model.
//
// Responsibilities: aggregation of suppressed detections and tracker motion
// into the published CrowdMetrics record (people count, density, panic
// index, stampede probability, zone violations, object histogram) and the
// discrete risk classification.
//
// Risk classification is a pure baseline over density and probability
// followed by an escalation pass that can only raise the level.
//
// Dependency rule: L4 may depend on L1-L3. The aggregator accepts tracker
// output (l3motion.Motion), never tracker state.
package l4metrics
