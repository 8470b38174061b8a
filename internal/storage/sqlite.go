package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS observations (
	field TEXT NOT NULL,
	observed_at TEXT NOT NULL,
	ndvi REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_field ON observations(field, observed_at);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id TEXT PRIMARY KEY,
	field TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	policy TEXT,
	ndvi_soil REAL,
	ndvi_vegetation REAL,
	sowing_date TEXT NOT NULL,
	harvest_date TEXT NOT NULL,
	peak_date TEXT NOT NULL,
	peak_ndvi REAL NOT NULL,
	trials INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_days (
	run_id TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
	day_offset INTEGER NOT NULL,
	date TEXT NOT NULL,
	ndvi REAL NOT NULL,
	ndvi_lower REAL NOT NULL,
	ndvi_upper REAL NOT NULL,
	fvc REAL,
	fvc_lower REAL,
	fvc_upper REAL,
	growth_stage TEXT NOT NULL,
	PRIMARY KEY (run_id, day_offset)
);
`

// SQLiteStore implements Store on a local SQLite database
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path
func NewSQLiteStore(path string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single connection serializes writers and keeps in-memory databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Debugf("opened SQLite store at %s", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveObservations replaces the stored observations of a field
func (s *SQLiteStore) SaveObservations(ctx context.Context, field string, obs []phenology.Observation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM observations WHERE field = ?", field); err != nil {
		return fmt.Errorf("failed to clear observations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO observations (field, observed_at, ndvi) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, field, o.Date.UTC().Format(time.RFC3339Nano), o.Index); err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Infof("stored %d observations for field %s", len(obs), field)
	return nil
}

// LoadObservations returns a field's observations sorted by date
func (s *SQLiteStore) LoadObservations(ctx context.Context, field string) ([]phenology.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT observed_at, ndvi FROM observations WHERE field = ? ORDER BY observed_at, rowid", field)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var obs []phenology.Observation
	for rows.Next() {
		var ts string
		var o phenology.Observation
		if err := rows.Scan(&ts, &o.Index); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if o.Date, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("invalid stored timestamp %q: %w", ts, err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// SaveAnalysis stores an analysis run with its daily series
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, field string, a *phenology.Analysis) (uuid.UUID, error) {
	run := newRun(field, a)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var policy sql.NullString
	var soil, vegetation sql.NullFloat64
	if p := run.Parameters; p != nil {
		policy = sql.NullString{String: string(p.Policy), Valid: true}
		soil = sql.NullFloat64{Float64: p.SoilIndex, Valid: true}
		vegetation = sql.NullFloat64{Float64: p.VegetationIndex, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			id, field, algorithm, policy, ndvi_soil, ndvi_vegetation,
			sowing_date, harvest_date, peak_date, peak_ndvi, trials, succeeded, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), field, string(run.Algorithm), policy, soil, vegetation,
		formatDate(run.SowingDate), formatDate(run.HarvestDate), formatDate(run.PeakDate), run.PeakIndex,
		run.Trials, run.Succeeded, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert analysis run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analysis_days (
			run_id, day_offset, date, ndvi, ndvi_lower, ndvi_upper, fvc, fvc_lower, fvc_upper, growth_stage
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, err
	}
	defer stmt.Close()

	for _, p := range run.Series {
		var fvc, fvcLower, fvcUpper sql.NullFloat64
		if p.Cover != nil {
			fvc = sql.NullFloat64{Float64: p.Cover.Fraction, Valid: true}
			fvcLower = sql.NullFloat64{Float64: p.Cover.Lower, Valid: true}
			fvcUpper = sql.NullFloat64{Float64: p.Cover.Upper, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID.String(), p.DayOffset, formatDate(p.Date),
			p.Index, p.Lower, p.Upper, fvc, fvcLower, fvcUpper, p.Stage); err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert day %d: %w", p.DayOffset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	s.logger.Infof("stored analysis run %s (%s, %d days) for field %s", run.ID, run.Algorithm, len(run.Series), field)
	return run.ID, nil
}

const runColumns = `id, field, algorithm, policy, ndvi_soil, ndvi_vegetation,
	sowing_date, harvest_date, peak_date, peak_ndvi, trials, succeeded, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                            Run
		id, algorithm                  string
		policy                         sql.NullString
		soil, vegetation               sql.NullFloat64
		sowing, harvest, peak, created string
	)
	if err := row.Scan(&id, &run.Field, &algorithm, &policy, &soil, &vegetation,
		&sowing, &harvest, &peak, &run.PeakIndex, &run.Trials, &run.Succeeded, &created); err != nil {
		return Run{}, err
	}

	var err error
	if run.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run.Algorithm = phenology.Algorithm(algorithm)
	if policy.Valid {
		run.Parameters = &phenology.NormalizationParameters{
			Policy:          phenology.Policy(policy.String),
			SoilIndex:       soil.Float64,
			VegetationIndex: vegetation.Float64,
		}
	}
	if run.SowingDate, err = parseDate(sowing); err != nil {
		return Run{}, err
	}
	if run.HarvestDate, err = parseDate(harvest); err != nil {
		return Run{}, err
	}
	if run.PeakDate, err = parseDate(peak); err != nil {
		return Run{}, err
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Run{}, err
	}
	return run, nil
}

// LoadRun returns a run with its daily series
func (s *SQLiteStore) LoadRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM analysis_runs WHERE id = ?", id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT day_offset, date, ndvi, ndvi_lower, ndvi_upper, fvc, fvc_lower, fvc_upper, growth_stage
		FROM analysis_days WHERE run_id = ? ORDER BY day_offset`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p phenology.DailyPoint
		var date string
		var fvc, fvcLower, fvcUpper sql.NullFloat64
		if err := rows.Scan(&p.DayOffset, &date, &p.Index, &p.Lower, &p.Upper,
			&fvc, &fvcLower, &fvcUpper, &p.Stage); err != nil {
			return nil, fmt.Errorf("failed to scan analysis day: %w", err)
		}
		if p.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if fvc.Valid {
			p.Cover = coverFromFractions(fvc.Float64, fvcLower.Float64, fvcUpper.Float64)
		}
		run.Series = append(run.Series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns a field's runs, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, field string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM analysis_runs WHERE field = ? ORDER BY created_at DESC", field)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func coverFromFractions(fraction, lower, upper float64) *phenology.Cover {
	return &phenology.Cover{
		Fraction:        fraction,
		Lower:           lower,
		Upper:           upper,
		Percentage:      phenology.CoverPercentage(fraction),
		PercentageLower: phenology.CoverPercentage(lower),
		PercentageUpper: phenology.CoverPercentage(upper),
	}
}
