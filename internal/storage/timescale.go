package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/phenology/internal/log"
	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ObservationRecord is a stored NDVI observation
type ObservationRecord struct {
	ID         uint      `gorm:"column:id;primaryKey"`
	Field      string    `gorm:"column:field;index:idx_field_observed"`
	ObservedAt time.Time `gorm:"column:observed_at;index:idx_field_observed"`
	NDVI       float64   `gorm:"column:ndvi"`
}

func (ObservationRecord) TableName() string {
	return "observations"
}

// RunRecord is the summary row of an analysis run
type RunRecord struct {
	ID             uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	Field          string      `gorm:"column:field;index"`
	Algorithm      string      `gorm:"column:algorithm"`
	Policy         *string     `gorm:"column:policy"`
	NDVISoil       *float64    `gorm:"column:ndvi_soil"`
	NDVIVegetation *float64    `gorm:"column:ndvi_vegetation"`
	SowingDate     time.Time   `gorm:"column:sowing_date;type:date"`
	HarvestDate    time.Time   `gorm:"column:harvest_date;type:date"`
	PeakDate       time.Time   `gorm:"column:peak_date;type:date"`
	PeakNDVI       float64     `gorm:"column:peak_ndvi"`
	Trials         int         `gorm:"column:trials"`
	Succeeded      int         `gorm:"column:succeeded"`
	CreatedAt      time.Time   `gorm:"column:created_at"`
	Days           []DayRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (RunRecord) TableName() string {
	return "analysis_runs"
}

// DayRecord is one day of a stored analysis series
type DayRecord struct {
	RunID       uuid.UUID `gorm:"column:run_id;type:uuid;primaryKey"`
	DayOffset   int       `gorm:"column:day_offset;primaryKey"`
	Date        time.Time `gorm:"column:date;type:date"`
	NDVI        float64   `gorm:"column:ndvi"`
	NDVILower   float64   `gorm:"column:ndvi_lower"`
	NDVIUpper   float64   `gorm:"column:ndvi_upper"`
	FVC         *float64  `gorm:"column:fvc"`
	FVCLower    *float64  `gorm:"column:fvc_lower"`
	FVCUpper    *float64  `gorm:"column:fvc_upper"`
	GrowthStage string    `gorm:"column:growth_stage"`
}

func (DayRecord) TableName() string {
	return "analysis_days"
}

// TimescaleStore implements Store on TimescaleDB (or plain PostgreSQL) through gorm
type TimescaleStore struct {
	DB     *gorm.DB
	logger *zap.SugaredLogger
}

// NewTimescaleStore connects to connectionString and migrates the schema
func NewTimescaleStore(connectionString string, logger *zap.SugaredLogger) (*TimescaleStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	logger.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("unable to create a TimescaleDB connection: %w", err)
	}
	logger.Info("TimescaleDB connection successful")

	if err := db.AutoMigrate(&ObservationRecord{}, &RunRecord{}, &DayRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &TimescaleStore{DB: db, logger: logger}, nil
}

func gormLogger() logger.Interface {
	return logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}

// SaveObservations replaces the stored observations of a field
func (t *TimescaleStore) SaveObservations(ctx context.Context, field string, obs []phenology.Observation) error {
	records := observationRecords(field, obs)
	err := t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("field = ?", field).Delete(&ObservationRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 500).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store observations: %w", err)
	}
	t.logger.Infof("stored %d observations for field %s", len(obs), field)
	return nil
}

// LoadObservations returns a field's observations sorted by date
func (t *TimescaleStore) LoadObservations(ctx context.Context, field string) ([]phenology.Observation, error) {
	var records []ObservationRecord
	err := t.DB.WithContext(ctx).
		Where("field = ?", field).
		Order("observed_at, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}

	obs := make([]phenology.Observation, len(records))
	for i, r := range records {
		obs[i] = phenology.Observation{Date: r.ObservedAt.UTC(), Index: r.NDVI}
	}
	return obs, nil
}

// SaveAnalysis stores an analysis run with its daily series
func (t *TimescaleStore) SaveAnalysis(ctx context.Context, field string, a *phenology.Analysis) (uuid.UUID, error) {
	run := newRun(field, a)
	record := runRecord(run)
	err := t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		days := record.Days
		record.Days = nil
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if len(days) == 0 {
			return nil
		}
		return tx.CreateInBatches(days, 500).Error
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store analysis run: %w", err)
	}
	t.logger.Infof("stored analysis run %s (%s, %d days) for field %s", run.ID, run.Algorithm, len(run.Series), field)
	return run.ID, nil
}

// LoadRun returns a run with its daily series
func (t *TimescaleStore) LoadRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var record RunRecord
	err := t.DB.WithContext(ctx).
		Preload("Days", func(db *gorm.DB) *gorm.DB { return db.Order("day_offset") }).
		First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis run: %w", err)
	}
	run := record.run()
	return &run, nil
}

// ListRuns returns a field's runs, newest first
func (t *TimescaleStore) ListRuns(ctx context.Context, field string) ([]Run, error) {
	var records []RunRecord
	err := t.DB.WithContext(ctx).
		Where("field = ?", field).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}

	runs := make([]Run, len(records))
	for i, r := range records {
		runs[i] = r.run()
	}
	return runs, nil
}

// Close closes the underlying connection pool
func (t *TimescaleStore) Close() error {
	sqlDB, err := t.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func observationRecords(field string, obs []phenology.Observation) []ObservationRecord {
	records := make([]ObservationRecord, len(obs))
	for i, o := range obs {
		records[i] = ObservationRecord{Field: field, ObservedAt: o.Date.UTC(), NDVI: o.Index}
	}
	return records
}

func runRecord(run Run) RunRecord {
	r := RunRecord{
		ID:          run.ID,
		Field:       run.Field,
		Algorithm:   string(run.Algorithm),
		SowingDate:  run.SowingDate,
		HarvestDate: run.HarvestDate,
		PeakDate:    run.PeakDate,
		PeakNDVI:    run.PeakIndex,
		Trials:      run.Trials,
		Succeeded:   run.Succeeded,
		CreatedAt:   run.CreatedAt,
	}
	if p := run.Parameters; p != nil {
		policy := string(p.Policy)
		r.Policy = &policy
		r.NDVISoil = &p.SoilIndex
		r.NDVIVegetation = &p.VegetationIndex
	}

	r.Days = make([]DayRecord, len(run.Series))
	for i, p := range run.Series {
		d := DayRecord{
			RunID:       run.ID,
			DayOffset:   p.DayOffset,
			Date:        p.Date,
			NDVI:        p.Index,
			NDVILower:   p.Lower,
			NDVIUpper:   p.Upper,
			GrowthStage: p.Stage,
		}
		if c := p.Cover; c != nil {
			d.FVC, d.FVCLower, d.FVCUpper = &c.Fraction, &c.Lower, &c.Upper
		}
		r.Days[i] = d
	}
	return r
}

func (r RunRecord) run() Run {
	run := Run{
		ID:          r.ID,
		Field:       r.Field,
		Algorithm:   phenology.Algorithm(r.Algorithm),
		SowingDate:  r.SowingDate.UTC(),
		HarvestDate: r.HarvestDate.UTC(),
		PeakDate:    r.PeakDate.UTC(),
		PeakIndex:   r.PeakNDVI,
		Trials:      r.Trials,
		Succeeded:   r.Succeeded,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.Policy != nil {
		run.Parameters = &phenology.NormalizationParameters{Policy: phenology.Policy(*r.Policy)}
		if r.NDVISoil != nil {
			run.Parameters.SoilIndex = *r.NDVISoil
		}
		if r.NDVIVegetation != nil {
			run.Parameters.VegetationIndex = *r.NDVIVegetation
		}
	}

	for _, d := range r.Days {
		p := phenology.DailyPoint{
			Date:      d.Date.UTC(),
			DayOffset: d.DayOffset,
			Index:     d.NDVI,
			Lower:     d.NDVILower,
			Upper:     d.NDVIUpper,
			Stage:     d.GrowthStage,
		}
		if d.FVC != nil && d.FVCLower != nil && d.FVCUpper != nil {
			p.Cover = coverFromFractions(*d.FVC, *d.FVCLower, *d.FVCUpper)
		}
		run.Series = append(run.Series, p)
	}
	return run
}
