// Package storage persists observations and analysis runs in SQLite or TimescaleDB.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/pkg/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRunNotFound reports an unknown analysis run id
var ErrRunNotFound = errors.New("analysis run not found")

// Store persists observations per field and the results of analysis runs
type Store interface {
	// SaveObservations replaces the stored observations of a field
	SaveObservations(ctx context.Context, field string, obs []phenology.Observation) error

	// LoadObservations returns a field's observations sorted by date
	LoadObservations(ctx context.Context, field string) ([]phenology.Observation, error)

	// SaveAnalysis stores an analysis run and returns its id
	SaveAnalysis(ctx context.Context, field string, a *phenology.Analysis) (uuid.UUID, error)

	// LoadRun returns a run with its daily series
	LoadRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// ListRuns returns a field's runs, newest first, without daily series
	ListRuns(ctx context.Context, field string) ([]Run, error)

	Close() error
}

// Run is a persisted analysis run
type Run struct {
	ID          uuid.UUID                          `json:"id"`
	Field       string                             `json:"field"`
	Algorithm   phenology.Algorithm                `json:"algorithm"`
	Parameters  *phenology.NormalizationParameters `json:"parameters,omitempty"`
	SowingDate  time.Time                          `json:"sowing_date"`
	HarvestDate time.Time                          `json:"harvest_date"`
	PeakDate    time.Time                          `json:"peak_date"`
	PeakIndex   float64                            `json:"peak_ndvi"`
	Trials      int                                `json:"bootstrap_trials"`
	Succeeded   int                                `json:"bootstrap_succeeded"`
	CreatedAt   time.Time                          `json:"created_at"`
	Series      []phenology.DailyPoint             `json:"series,omitempty"`
}

// newRun captures the summary of an analysis under a fresh id
func newRun(field string, a *phenology.Analysis) Run {
	return Run{
		ID:          uuid.New(),
		Field:       field,
		Algorithm:   a.Algorithm,
		Parameters:  a.Parameters,
		SowingDate:  a.Season.Start,
		HarvestDate: a.Season.End,
		PeakDate:    a.Schedule.PeakDate,
		PeakIndex:   a.Schedule.PeakIndex,
		Trials:      a.Trials,
		Succeeded:   a.Succeeded,
		CreatedAt:   a.CreatedAt.UTC(),
		Series:      a.Series,
	}
}

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// ErrNoBackend reports a storage section with no backend configured
var ErrNoBackend = errors.New("no storage backend configured")

// Open connects to the configured backend. TimescaleDB wins when both are set.
func Open(cfg config.StorageData, logger *zap.SugaredLogger) (Store, error) {
	switch {
	case cfg.TimescaleDB != nil:
		return NewTimescaleStore(cfg.TimescaleDB.ConnectionString, logger)
	case cfg.SQLite != nil:
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	default:
		return nil, ErrNoBackend
	}
}
