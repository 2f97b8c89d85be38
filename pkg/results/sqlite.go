package results

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunInfo describes the batch a store records.
type RunInfo struct {
	InputDir   string
	PixelWidth float64
	PixelDepth float64
}

// SQLiteStore keeps every run in one database, keyed by a generated run ID.
type SQLiteStore struct {
	db    *sql.DB
	runID string
	mu    sync.Mutex
}

// OpenSQLiteStore opens (or creates) the database at path, applies pending
// migrations and registers a new run.
func OpenSQLiteStore(path string, run RunInfo) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, runID: uuid.NewString()}
	_, err = db.Exec(`INSERT INTO runs (run_id, input_dir, pixel_width, pixel_depth) VALUES (?, ?, ?, ?)`,
		s.runID, run.InputDir, run.PixelWidth, run.PixelDepth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registering run: %w", err)
	}
	return s, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// m is not closed: that would close db as well
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// RunID returns the identifier of the run being recorded.
func (s *SQLiteStore) RunID() string {
	return s.runID
}

// WriteProfile stores the profile rows of an image in one transaction.
func (s *SQLiteStore) WriteProfile(name string, rows []ProfileRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO profile_rows
		(run_id, image_name, circle_index, radius_um, outer_radius_um, stain_area_um2, nucleus_count, intersections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(s.runID, name, r.CircleIndex, r.RadiusMicrons, r.OuterRadiusMicrons, r.StainAreaMicrons2, r.NucleusCount, r.Intersections); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting profile row %d of %s: %w", r.CircleIndex, name, err)
		}
	}
	return tx.Commit()
}

// WriteNuclei stores the nucleus records of an image in one transaction.
func (s *SQLiteStore) WriteNuclei(name string, recs []NucleusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO nuclei
		(run_id, image_name, label, area_um2, distance_um, x, y)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(s.runID, name, r.Label, r.AreaMicrons2, r.DistanceMicrons, r.X, r.Y); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting nucleus %d of %s: %w", r.Label, name, err)
		}
	}
	return tx.Commit()
}

// WriteSummary stores the summary row of an image.
func (s *SQLiteStore) WriteSummary(sum ImageSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO summaries
		(run_id, image_name, spheroid_area_um2, spheroid_radius_um, stain_area_um2, nucleus_count,
		 mean_nucleus_distance, median_nucleus_distance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, sum.ImageName, sum.SpheroidAreaMicrons2, sum.SpheroidRadiusMicrons, sum.StainAreaMicrons2,
		sum.NucleusCount, sum.MeanNucleusDistance, sum.MedianNucleusDistance)
	if err != nil {
		return fmt.Errorf("inserting summary of %s: %w", sum.ImageName, err)
	}
	return nil
}

// WriteFailure stores a failed image.
func (s *SQLiteStore) WriteFailure(f Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	_, err := s.db.Exec(`INSERT INTO failures (run_id, image_name, stage, error) VALUES (?, ?, ?, ?)`,
		s.runID, f.ImageName, f.Stage, msg)
	return err
}

// Summaries returns the summary rows of a run ordered by image name.
func (s *SQLiteStore) Summaries(runID string) ([]ImageSummary, error) {
	rows, err := s.db.Query(`SELECT image_name, spheroid_area_um2, spheroid_radius_um, stain_area_um2, nucleus_count,
		mean_nucleus_distance, median_nucleus_distance
		FROM summaries WHERE run_id = ? ORDER BY image_name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImageSummary
	for rows.Next() {
		var sum ImageSummary
		if err := rows.Scan(&sum.ImageName, &sum.SpheroidAreaMicrons2, &sum.SpheroidRadiusMicrons, &sum.StainAreaMicrons2,
			&sum.NucleusCount, &sum.MeanNucleusDistance, &sum.MedianNucleusDistance); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ProfileRows returns the profile of one image of a run in circle order.
func (s *SQLiteStore) ProfileRows(runID, name string) ([]ProfileRow, error) {
	rows, err := s.db.Query(`SELECT circle_index, radius_um, outer_radius_um, stain_area_um2, nucleus_count, intersections
		FROM profile_rows WHERE run_id = ? AND image_name = ? ORDER BY circle_index`, runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProfileRow
	for rows.Next() {
		var r ProfileRow
		if err := rows.Scan(&r.CircleIndex, &r.RadiusMicrons, &r.OuterRadiusMicrons, &r.StainAreaMicrons2, &r.NucleusCount, &r.Intersections); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailureCount returns the number of failures recorded for a run.
func (s *SQLiteStore) FailureCount(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM failures WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
