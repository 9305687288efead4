package trackdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/LdDl/celltrack-go/celltrack"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ListTrackStats reads back statistics of every track of run, ascending track id
func (db *DB) ListTrackStats(ctx context.Context, runID uuid.UUID) ([]celltrack.TrackStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT track_id, start_time, end_time, lifetime_ns, start_split, end_merge, start_status, end_status,
			max_area, max_area_time, min_area, start_lat, start_lon, end_lat, end_lon, displacement_km, speed_kmh
		FROM tracks WHERE run_id = ? ORDER BY track_id`, runID.String())
	if err != nil {
		return nil, errors.Wrap(err, "can't query tracks")
	}
	defer rows.Close()

	var (
		stats []celltrack.TrackStats
		index = make(map[int]int)
	)
	for rows.Next() {
		var (
			s                                  celltrack.TrackStats
			start, end, lifetime, maxAreaTime  int64
			startStatus, endStatus             string
			startLat, startLon, endLat, endLon sql.NullFloat64
		)
		err := rows.Scan(&s.TrackID, &start, &end, &lifetime, &s.StartSplit, &s.EndMerge, &startStatus, &endStatus,
			&s.MaxArea, &maxAreaTime, &s.MinArea, &startLat, &startLon, &endLat, &endLon, &s.Displacement, &s.Speed)
		if err != nil {
			return nil, errors.Wrap(err, "can't scan track")
		}
		s.StartTime = fromUnixNano(start)
		s.EndTime = fromUnixNano(end)
		s.Lifetime = time.Duration(lifetime)
		s.MaxAreaTime = fromUnixNano(maxAreaTime)
		s.StartStatus = parseStartStatus(startStatus)
		s.EndStatus = parseEndStatus(endStatus)
		s.StartCentroid = celltrack.NewPoint(floatOrNaN(startLat), floatOrNaN(startLon))
		s.EndCentroid = celltrack.NewPoint(floatOrNaN(endLat), floatOrNaN(endLon))
		index[s.TrackID] = len(stats)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "can't iterate tracks")
	}
	if len(stats) == 0 {
		if _, err := db.GetRun(ctx, runID); err != nil {
			return nil, err
		}
		return stats, nil
	}

	steps, err := db.QueryContext(ctx, `
		SELECT track_id, base_time, frame_index, object_id, mean_lat, mean_lon, area, pixel_count
		FROM track_steps WHERE run_id = ? ORDER BY track_id, step`, runID.String())
	if err != nil {
		return nil, errors.Wrap(err, "can't query track steps")
	}
	defer steps.Close()
	for steps.Next() {
		var (
			trackID, frame, object, pixels int
			baseTime                       int64
			lat, lon                       sql.NullFloat64
			area                           float64
		)
		if err := steps.Scan(&trackID, &baseTime, &frame, &object, &lat, &lon, &area, &pixels); err != nil {
			return nil, errors.Wrap(err, "can't scan track step")
		}
		i, ok := index[trackID]
		if !ok {
			return nil, errors.Errorf("step refers to unknown track %d", trackID)
		}
		s := &stats[i]
		s.BaseTimes = append(s.BaseTimes, fromUnixNano(baseTime))
		s.FrameIndex = append(s.FrameIndex, frame)
		s.ObjectID = append(s.ObjectID, object)
		s.MeanLat = append(s.MeanLat, floatOrNaN(lat))
		s.MeanLon = append(s.MeanLon, floatOrNaN(lon))
		s.Area = append(s.Area, area)
		s.PixelCount = append(s.PixelCount, pixels)
	}
	return stats, errors.Wrap(steps.Err(), "can't iterate track steps")
}

// TracksStartedBetween returns ids of tracks of run starting within [start, end]
func (db *DB) TracksStartedBetween(ctx context.Context, runID uuid.UUID, start, end time.Time) ([]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT track_id FROM tracks
		WHERE run_id = ? AND start_time >= ? AND start_time <= ?
		ORDER BY track_id`, runID.String(), start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "can't query tracks by start time")
	}
	defer rows.Close()
	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "can't scan track id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "can't iterate track ids")
}

// Family returns ids of tracks that split from or merged into track id within run
func (db *DB) Family(ctx context.Context, runID uuid.UUID, id int) ([]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT track_id FROM tracks
		WHERE run_id = ? AND (start_split = ? OR end_merge = ?)
		ORDER BY track_id`, runID.String(), id, id)
	if err != nil {
		return nil, errors.Wrapf(err, "can't query family of track %d", id)
	}
	defer rows.Close()
	ids := make([]int, 0)
	for rows.Next() {
		var child int
		if err := rows.Scan(&child); err != nil {
			return nil, errors.Wrap(err, "can't scan track id")
		}
		ids = append(ids, child)
	}
	return ids, errors.Wrap(rows.Err(), "can't iterate track ids")
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func parseStartStatus(s string) celltrack.StartStatus {
	for status := celltrack.StartNew; status <= celltrack.StartSeriesStart; status++ {
		if status.String() == s {
			return status
		}
	}
	return 0
}

func parseEndStatus(s string) celltrack.EndStatus {
	for status := celltrack.EndOpen; status <= celltrack.EndSeriesEnd; status++ {
		if status.String() == s {
			return status
		}
	}
	return celltrack.EndOpen
}
