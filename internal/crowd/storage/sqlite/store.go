package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/crowd.report/internal/crowd/l1decode"
	"github.com/banshee-data/crowd.report/internal/crowd/l4metrics"
	"github.com/banshee-data/crowd.report/internal/crowd/pipeline"
	"github.com/banshee-data/crowd.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Component("sqlite")

// pragmas are applied to every connection opened by Open.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Store persists pipeline snapshots to SQLite.
type Store struct {
	db *sql.DB
}

var _ pipeline.SnapshotSink = (*Store)(nil)

// MetricsRow is one stored metrics record.
type MetricsRow struct {
	FrameID    uuid.UUID
	SourceID   string
	CapturedAt time.Time
	Degraded   bool
	Seeded     bool
	Metrics    l4metrics.CrowdMetrics
}

// Open opens (or creates) the database at path and applies pending
// migrations. Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateUp applies all pending migrations. The migrate instance is not
// closed because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and dirty flag.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// RecordSnapshot stores the metrics and detections of one frame in a single
// transaction.
func (s *Store) RecordSnapshot(ctx context.Context, snap pipeline.Snapshot) error {
	counts, err := json.Marshal(snap.Metrics.ObjectCounts)
	if err != nil {
		return fmt.Errorf("encode object counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	m := snap.Metrics
	_, err = tx.ExecContext(ctx, `
		INSERT INTO crowd_metrics (
			frame_id, source_id, captured_unix_nanos, degraded, seeded,
			people_count, density, flow_rate, counter_flow_count, avg_velocity,
			congestion_zone_count, stampede_probability, risk_level,
			agitation_level, panic_index, object_counts_json, audio_level,
			zone_violations, average_flow_direction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.FrameID.String(), snap.SourceID, snap.Time.UnixNano(), snap.Degraded, snap.Seeded,
		m.PeopleCount, m.Density, m.FlowRate, m.CounterFlowCount, m.AvgVelocity,
		m.CongestionZoneCount, m.StampedeProbability, m.RiskLevel.String(),
		m.AgitationLevel, m.PanicIndex, string(counts), m.AudioLevel,
		m.ZoneViolations, m.AverageFlowDirection,
	)
	if err != nil {
		return fmt.Errorf("insert metrics for frame %s: %w", snap.FrameID, err)
	}

	if len(snap.Detections) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO crowd_detections (
				frame_id, position, detection_id, label, confidence, ymin, xmin, ymax, xmax
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare detection insert: %w", err)
		}
		defer stmt.Close()

		for i, d := range snap.Detections {
			if _, err := stmt.ExecContext(ctx, snap.FrameID.String(), i, d.ID, d.Label, d.Confidence,
				d.Box.YMin, d.Box.XMin, d.Box.YMax, d.Box.XMax); err != nil {
				return fmt.Errorf("insert detection %s for frame %s: %w", d.ID, snap.FrameID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot %s: %w", snap.FrameID, err)
	}
	return nil
}

// RecentMetrics returns up to limit metrics rows for sourceID, newest first.
// A non-positive limit returns every row.
func (s *Store) RecentMetrics(ctx context.Context, sourceID string, limit int) ([]MetricsRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_id, source_id, captured_unix_nanos, degraded, seeded,
			people_count, density, flow_rate, counter_flow_count, avg_velocity,
			congestion_zone_count, stampede_probability, risk_level,
			agitation_level, panic_index, object_counts_json, audio_level,
			zone_violations, average_flow_direction
		FROM crowd_metrics
		WHERE source_id = ?
		ORDER BY captured_unix_nanos DESC, rowid DESC
		LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent metrics: %w", err)
	}
	defer rows.Close()

	var out []MetricsRow
	for rows.Next() {
		var (
			row      MetricsRow
			frameID  string
			captured int64
			risk     string
			counts   string
		)
		m := &row.Metrics
		if err := rows.Scan(
			&frameID, &row.SourceID, &captured, &row.Degraded, &row.Seeded,
			&m.PeopleCount, &m.Density, &m.FlowRate, &m.CounterFlowCount, &m.AvgVelocity,
			&m.CongestionZoneCount, &m.StampedeProbability, &risk,
			&m.AgitationLevel, &m.PanicIndex, &counts, &m.AudioLevel,
			&m.ZoneViolations, &m.AverageFlowDirection,
		); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		if row.FrameID, err = uuid.Parse(frameID); err != nil {
			return nil, fmt.Errorf("frame id %q: %w", frameID, err)
		}
		if m.RiskLevel, err = l4metrics.ParseRiskLevel(risk); err != nil {
			return nil, fmt.Errorf("frame %s: %w", frameID, err)
		}
		if err := json.Unmarshal([]byte(counts), &m.ObjectCounts); err != nil {
			return nil, fmt.Errorf("frame %s object counts: %w", frameID, err)
		}
		row.CapturedAt = time.Unix(0, captured).UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// Detections returns the stored detections of one frame in their original
// order.
func (s *Store) Detections(ctx context.Context, frameID uuid.UUID) ([]l1decode.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, detection_id, label, confidence, ymin, xmin, ymax, xmax
		FROM crowd_detections
		WHERE frame_id = ?
		ORDER BY position`, frameID.String())
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	out := []l1decode.Detection{}
	for rows.Next() {
		var d l1decode.Detection
		if err := rows.Scan(&d.Index, &d.ID, &d.Label, &d.Confidence,
			&d.Box.YMin, &d.Box.XMin, &d.Box.YMax, &d.Box.XMax); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RiskCounts returns how many stored frames of sourceID fall in each risk
// level.
func (s *Store) RiskCounts(ctx context.Context, sourceID string) (map[l4metrics.RiskLevel]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT risk_level, COUNT(*)
		FROM crowd_metrics
		WHERE source_id = ?
		GROUP BY risk_level`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query risk counts: %w", err)
	}
	defer rows.Close()

	out := make(map[l4metrics.RiskLevel]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan risk count: %w", err)
		}
		level, err := l4metrics.ParseRiskLevel(name)
		if err != nil {
			return nil, err
		}
		out[level] = n
	}
	return out, rows.Err()
}
