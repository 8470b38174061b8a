// Package app runs one configured analysis end to end: load, analyze, export, persist
// and optionally serve.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/phenology/internal/chart"
	"github.com/chrissnell/phenology/internal/export"
	"github.com/chrissnell/phenology/internal/observations"
	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/internal/report"
	"github.com/chrissnell/phenology/internal/server"
	"github.com/chrissnell/phenology/internal/storage"
	"github.com/chrissnell/phenology/pkg/config"
	"github.com/chrissnell/phenology/pkg/responseformat"
	"go.uber.org/zap"
)

const healthInterval = time.Minute

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger

	// Out receives the textual report and comparison table
	Out io.Writer
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{cfg: cfg, logger: logger, Out: os.Stdout}
}

// Run analyzes the configured season, writes every configured output and, when a
// server section is present, serves the result until a shutdown signal arrives
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	var store storage.Store
	if a.cfg.Storage.SQLite != nil || a.cfg.Storage.TimescaleDB != nil {
		var err error
		store, err = storage.Open(a.cfg.Storage, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()
	}

	analysis, err := a.Analyze(ctx, store)
	if err != nil {
		return err
	}

	if err := a.WriteOutputs(analysis); err != nil {
		return err
	}

	if a.cfg.Server == nil {
		return nil
	}
	return a.serve(ctx, analysis, store)
}

// Analyze loads observations, runs the pipeline and persists the run when a field
// and store are configured
func (a *App) Analyze(ctx context.Context, store storage.Store) (*phenology.Analysis, error) {
	season, err := a.cfg.SeasonRange()
	if err != nil {
		return nil, err
	}
	opts, err := a.cfg.AnalysisOptions()
	if err != nil {
		return nil, err
	}

	obs, err := a.loadObservations(ctx, store)
	if err != nil {
		return nil, err
	}
	a.logger.Infof("loaded %d observations (%s to %s)", len(obs),
		obs[0].Date.Format("2006-01-02"), obs[len(obs)-1].Date.Format("2006-01-02"))

	analyzer, err := phenology.NewAnalyzer(opts, a.logger)
	if err != nil {
		return nil, err
	}
	analysis, err := analyzer.Analyze(ctx, obs, season)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	if field := a.cfg.Input.Field; store != nil && field != "" {
		id, err := store.SaveAnalysis(ctx, field, analysis)
		if err != nil {
			return nil, err
		}
		a.logger.Infof("analysis run %s saved for field %s", id, field)
	}
	return analysis, nil
}

// loadObservations reads the CSV when one is configured, storing it under the field
// name if both are set; otherwise the field is loaded from storage
func (a *App) loadObservations(ctx context.Context, store storage.Store) ([]phenology.Observation, error) {
	in := a.cfg.Input

	if in.CSV != "" {
		obs, err := observations.LoadCSV(in.CSV)
		if err != nil {
			return nil, err
		}
		if store != nil && in.Field != "" {
			if err := store.SaveObservations(ctx, in.Field, obs); err != nil {
				return nil, err
			}
		}
		return obs, nil
	}

	if store == nil {
		return nil, fmt.Errorf("%w: loading field %q needs a storage backend", phenology.ErrConfiguration, in.Field)
	}
	obs, err := store.LoadObservations(ctx, in.Field)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: field %q", observations.ErrNoObservations, in.Field)
	}
	return obs, nil
}

// WriteOutputs writes every configured file, the report and the comparison
func (a *App) WriteOutputs(analysis *phenology.Analysis) error {
	out := a.cfg.Output

	if out.CSV != "" {
		if err := export.SaveCSV(out.CSV, analysis); err != nil {
			return err
		}
		a.logger.Infof("results saved to %s", out.CSV)
	}
	if out.JSON != "" {
		if err := export.Save(out.JSON, responseformat.JSON, analysis); err != nil {
			return err
		}
		a.logger.Infof("results saved to %s", out.JSON)
	}
	if out.MsgPack != "" {
		if err := export.Save(out.MsgPack, responseformat.MsgPack, analysis); err != nil {
			return err
		}
		a.logger.Infof("results saved to %s", out.MsgPack)
	}
	if out.ChartPNG != "" {
		if err := chart.SavePNG(out.ChartPNG, analysis); err != nil {
			return err
		}
		a.logger.Infof("chart saved to %s", out.ChartPNG)
	}
	if out.ChartHTML != "" {
		if err := chart.SaveHTML(out.ChartHTML, analysis); err != nil {
			return err
		}
		a.logger.Infof("interactive chart saved to %s", out.ChartHTML)
	}
	if out.Report {
		if err := report.Summary(a.Out, analysis); err != nil {
			return err
		}
	}
	if out.Compare {
		if err := a.compare(analysis); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) compare(analysis *phenology.Analysis) error {
	results := phenology.CompareAlgorithms(analysis.Observations, analysis.Season, phenology.Algorithms, a.logger)
	rows := report.CompareRows(results, analysis.Observations, analysis.Season)
	if err := report.Comparison(a.Out, rows); err != nil {
		return err
	}

	if path := a.cfg.Output.ChartPNG; path != "" {
		cmpPath := withSuffix(path, "_comparison")
		if err := chart.SaveComparisonPNG(cmpPath, results, analysis.Observations, analysis.Season); err != nil {
			return err
		}
		a.logger.Infof("comparison chart saved to %s", cmpPath)
	}
	if path := a.cfg.Output.ChartHTML; path != "" {
		cmpPath := withSuffix(path, "_comparison")
		f, err := os.Create(cmpPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", cmpPath, err)
		}
		if err := chart.WriteComparisonHTML(f, results, analysis.Season); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		a.logger.Infof("comparison chart saved to %s", cmpPath)
	}
	return nil
}

// withSuffix inserts suffix before the file extension
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

func (a *App) serve(ctx context.Context, analysis *phenology.Analysis, store storage.Store) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var health *storage.HealthManager
	if checker, ok := store.(storage.HealthChecker); ok {
		health = storage.NewHealthManager()
		done := storage.StartHealthMonitor(ctx, storage.BackendName(store), checker, healthInterval, health, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}

	ctrl := server.NewController(ctx, &wg, *a.cfg.Server, store, health, a.logger)
	ctrl.SetAnalysis(analysis)
	if err := ctrl.StartController(); err != nil {
		return err
	}

	a.logger.Info("server started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")
	return nil
}
