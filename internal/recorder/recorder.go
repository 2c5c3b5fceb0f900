package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/radio-control/mavbridge/internal/command"
	"github.com/radio-control/mavbridge/internal/telemetry"
)

// SnapshotSource provides deep-copied telemetry snapshots.
type SnapshotSource interface {
	Snapshot() telemetry.Snapshot
}

// SnapshotRow is one recorded snapshot.
type SnapshotRow struct {
	RecordedAt                 time.Time `json:"recorded_at"`
	Connected                  bool      `json:"connected"`
	Armed                      *bool     `json:"armed"`
	Mode                       *string   `json:"mode"`
	Lat                        *float64  `json:"lat"`
	Lon                        *float64  `json:"lon"`
	AltitudeMeters             *float64  `json:"alt_m"`
	GroundSpeedMetersPerSecond *float64  `json:"groundspeed_m_s"`
	HeadingDegrees             *float64  `json:"heading_deg"`
	VoltageVolts               *float64  `json:"voltage_v"`
	CurrentAmps                *float64  `json:"current_a"`
	RemainingPercent           *float64  `json:"remaining_pct"`
}

// CommandRow is one recorded command outcome.
type CommandRow struct {
	RecordedAt time.Time `json:"recorded_at"`
	Subscriber string    `json:"subscriber"`
	Action     string    `json:"action"`
	Params     string    `json:"params"`
	OK         bool      `json:"ok"`
	Message    string    `json:"message"`
	LatencyMs  float64   `json:"latency_ms"`
}

// Recorder writes snapshots and command outcomes to SQLite.
type Recorder struct {
	dbPath string
	db     *sql.DB

	log *slog.Logger
	now func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Compile-time assertion that Recorder can receive command outcomes
var _ command.AuditLogger = (*Recorder)(nil)

// Open creates or opens the database at dbPath and initializes the schema.
func Open(dbPath string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the snapshot loop and commands
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Recorder{
		dbPath: dbPath,
		db:     db,
		log:    logger.With("component", "recorder"),
		now:    time.Now,
	}, nil
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.dbPath
}

// RecordSnapshot inserts one snapshot row.
func (r *Recorder) RecordSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	_, err := r.db.ExecContext(ctx, insertSnapshotSQL,
		r.now().UnixMilli(),
		snap.Connected,
		snap.Armed,
		snap.Mode,
		snap.GPS.Lat,
		snap.GPS.Lon,
		snap.GPS.AltitudeMeters,
		snap.GroundSpeedMetersPerSecond,
		snap.HeadingDegrees,
		snap.Battery.VoltageVolts,
		snap.Battery.CurrentAmps,
		snap.Battery.RemainingPercent,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// LogAction records a command outcome. Failures are logged, not returned.
func (r *Recorder) LogAction(ctx context.Context, action string, params map[string]any, result command.Result, latency time.Duration) {
	var paramsData sql.NullString
	if len(params) > 0 {
		p, err := json.Marshal(params)
		if err != nil {
			r.log.Warn("failed to marshal command params", "action", action, "error", err)
		} else {
			paramsData = sql.NullString{String: string(p), Valid: true}
		}
	}

	// The command context may already be cancelled by a closing session
	ctx = context.WithoutCancel(ctx)
	_, err := r.db.ExecContext(ctx, insertCommandSQL,
		r.now().UnixMilli(),
		command.SubscriberFrom(ctx),
		action,
		paramsData,
		result.OK,
		result.Message,
		float64(latency.Microseconds())/1000,
	)
	if err != nil {
		r.log.Warn("failed to record command", "action", action, "error", err)
	}
}

// Run records a snapshot from source every interval until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context, source SnapshotSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.RecordSnapshot(ctx, source.Snapshot()); err != nil && ctx.Err() == nil {
				r.log.Warn("failed to record snapshot", "error", err)
			}
		}
	}
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (r *Recorder) RecentSnapshots(ctx context.Context, limit int) (rows []SnapshotRow, err error) {
	result, err := r.db.QueryContext(ctx, selectSnapshotsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer closeWithError(result, &err)

	rows = []SnapshotRow{}
	for result.Next() {
		var row SnapshotRow
		var recordedAt int64
		if err = result.Scan(&recordedAt, &row.Connected, &row.Armed, &row.Mode, &row.Lat, &row.Lon,
			&row.AltitudeMeters, &row.GroundSpeedMetersPerSecond, &row.HeadingDegrees,
			&row.VoltageVolts, &row.CurrentAmps, &row.RemainingPercent); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		row.RecordedAt = time.UnixMilli(recordedAt).UTC()
		rows = append(rows, row)
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return rows, nil
}

// RecentCommands returns up to limit command outcomes, newest first.
func (r *Recorder) RecentCommands(ctx context.Context, limit int) (rows []CommandRow, err error) {
	result, err := r.db.QueryContext(ctx, selectCommandsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer closeWithError(result, &err)

	rows = []CommandRow{}
	for result.Next() {
		var row CommandRow
		var recordedAt int64
		var subscriber, params sql.NullString
		if err = result.Scan(&recordedAt, &subscriber, &row.Action, &params, &row.OK, &row.Message, &row.LatencyMs); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		row.RecordedAt = time.UnixMilli(recordedAt).UTC()
		row.Subscriber = subscriber.String
		row.Params = params.String
		rows = append(rows, row)
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return rows, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.db.Close()
	})
	return r.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
