// Package sqlite contains the SQLite snapshot store for crowd metrics.
//
// All database reads and writes for published snapshots belong here rather
// than in the layer packages (L1-L4) or the pipeline, which only sees the
// pipeline.SnapshotSink interface. The schema is managed by golang-migrate
// from migrations embedded in the binary.
package sqlite
