package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chrissnell/phenology/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverrides(t *testing.T) {
	cfg := &config.ConfigData{
		Analysis: config.AnalysisData{Algorithm: "guided", Policy: "phenological", Trials: 1000},
		Input:    config.InputData{CSV: "a.csv"},
	}
	applyOverrides(cfg, overrides{csv: "b.csv", policy: "none", trials: 50, seed: 9, serve: true})

	assert.Equal(t, "b.csv", cfg.Input.CSV)
	assert.Equal(t, "guided", cfg.Analysis.Algorithm)
	assert.Equal(t, "none", cfg.Analysis.Policy)
	assert.Equal(t, 50, cfg.Analysis.Trials)
	assert.Equal(t, int64(9), cfg.Analysis.Seed)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "phenology.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
season:
  sowing-date: 03.10.2023
  harvest-date: 15.07.2024
input:
  csv: ndvi.csv
`), 0o644))

	cfg, err := loadConfig(yamlPath, "yaml", "")
	require.NoError(t, err)
	assert.Equal(t, "03.10.2023", cfg.Season.SowingDate)
	assert.Equal(t, "guided", cfg.Analysis.Algorithm)

	dbPath := filepath.Join(dir, "phenology.db")
	provider, err := config.NewSQLiteProvider(dbPath, "wheat")
	require.NoError(t, err)
	require.NoError(t, provider.SaveConfig(cfg))
	require.NoError(t, provider.Close())

	fromDB, err := loadConfig(dbPath, "sqlite", "wheat")
	require.NoError(t, err)
	assert.Equal(t, cfg.Season, fromDB.Season)
	assert.Equal(t, cfg.Input, fromDB.Input)

	_, err = loadConfig(dbPath, "sqlite", "barley")
	assert.Error(t, err)

	_, err = loadConfig(yamlPath, "toml", "")
	assert.Error(t, err)
}
