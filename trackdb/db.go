// Package trackdb persists tracking runs into a SQLite database: one runs row per run,
// one tracks row per surviving track and one track_steps row per track time step.
package trackdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when run id is unknown
var ErrRunNotFound = errors.New("run not found")

const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type DB struct {
	*sql.DB
}

// Open opens (creating when needed) database at path and applies schema migrations
func Open(path string) (*DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open track database %s", path)
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is a stored tracking run
type Run struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	Config        celltrack.Config
	Diagnostics   celltrack.Diagnostics
	FrameInterval time.Duration
	Frames        int
	Tracks        int
}

// SaveResult stores res in a single transaction and returns id of the new run
func (db *DB) SaveResult(ctx context.Context, res *celltrack.Result) (uuid.UUID, error) {
	runID := uuid.New()
	configJSON, err := json.Marshal(res.Config)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "can't encode config")
	}
	diagJSON, err := json.Marshal(res.Diagnostics)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "can't encode diagnostics")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, config, diagnostics, frame_interval_ns, n_frames, n_tracks)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), time.Now().UTC().UnixNano(), string(configJSON), string(diagJSON),
		int64(res.FrameInterval), len(res.Frames), len(res.Stats),
	)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "can't insert run")
	}

	trackStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracks (
			run_id, track_id, start_time, end_time, lifetime_ns, n_steps, start_split, end_merge,
			start_status, end_status, max_area, max_area_time, min_area,
			start_lat, start_lon, end_lat, end_lon, displacement_km, speed_kmh
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "can't prepare track insert")
	}
	defer trackStmt.Close()
	stepStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_steps (
			run_id, track_id, step, base_time, frame_index, object_id, mean_lat, mean_lon, area, pixel_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "can't prepare step insert")
	}
	defer stepStmt.Close()

	for _, s := range res.Stats {
		_, err := trackStmt.ExecContext(ctx,
			runID.String(), s.TrackID, s.StartTime.UnixNano(), s.EndTime.UnixNano(), int64(s.Lifetime), len(s.BaseTimes),
			s.StartSplit, s.EndMerge, s.StartStatus.String(), s.EndStatus.String(),
			s.MaxArea, s.MaxAreaTime.UnixNano(), s.MinArea,
			nullFloat(s.StartCentroid.Lat), nullFloat(s.StartCentroid.Lon),
			nullFloat(s.EndCentroid.Lat), nullFloat(s.EndCentroid.Lon),
			s.Displacement, s.Speed,
		)
		if err != nil {
			return uuid.Nil, errors.Wrapf(err, "can't insert track %d", s.TrackID)
		}
		for i := range s.BaseTimes {
			_, err := stepStmt.ExecContext(ctx,
				runID.String(), s.TrackID, i, s.BaseTimes[i].UnixNano(), s.FrameIndex[i], s.ObjectID[i],
				nullFloat(s.MeanLat[i]), nullFloat(s.MeanLon[i]), s.Area[i], s.PixelCount[i],
			)
			if err != nil {
				return uuid.Nil, errors.Wrapf(err, "can't insert step %d of track %d", i, s.TrackID)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, errors.Wrap(err, "can't commit run")
	}
	return runID, nil
}

// GetRun returns stored run by id
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := db.QueryRowContext(ctx, `
		SELECT run_id, created_at, config, diagnostics, frame_interval_ns, n_frames, n_tracks
		FROM runs WHERE run_id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return run, err
}

// ListRuns returns every stored run, newest first
func (db *DB) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, created_at, config, diagnostics, frame_interval_ns, n_frames, n_tracks
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "can't query runs")
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, errors.Wrap(rows.Err(), "can't iterate runs")
}

// DeleteRun removes run with its tracks and steps
func (db *DB) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id.String())
	if err != nil {
		return errors.Wrapf(err, "can't delete run %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrRunNotFound, "run %s", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		id            string
		createdAt     int64
		configJSON    string
		diagJSON      string
		frameInterval int64
		run           Run
	)
	if err := row.Scan(&id, &createdAt, &configJSON, &diagJSON, &frameInterval, &run.Frames, &run.Tracks); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.Wrapf(err, "bad run id %q", id)
	}
	run.ID = parsed
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	run.FrameInterval = time.Duration(frameInterval)
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, errors.Wrapf(err, "can't decode config of run %s", id)
	}
	if err := json.Unmarshal([]byte(diagJSON), &run.Diagnostics); err != nil {
		return nil, errors.Wrapf(err, "can't decode diagnostics of run %s", id)
	}
	return &run, nil
}

// nullFloat stores NaN as NULL
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

// floatOrNaN reads NULL back as NaN
func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
