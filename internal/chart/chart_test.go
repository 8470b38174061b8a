package chart

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func season(t *testing.T) phenology.Season {
	t.Helper()
	s, err := phenology.NewSeason(
		time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

func observations(s phenology.Season) []phenology.Observation {
	return []phenology.Observation{
		{Date: s.Date(20), Index: 0.22},
		{Date: s.Date(90), Index: 0.41},
		{Date: s.Date(170), Index: 0.67},
		{Date: s.Date(215), Index: 0.83},
		{Date: s.Date(265), Index: 0.31},
	}
}

func analyze(t *testing.T, policy phenology.Policy) *phenology.Analysis {
	t.Helper()
	s := season(t)
	opts := phenology.DefaultOptions()
	opts.Policy = policy
	opts.Trials = 20
	opts.Seed = 3
	analyzer, err := phenology.NewAnalyzer(opts, nil)
	require.NoError(t, err)
	a, err := analyzer.Analyze(context.Background(), observations(s), s)
	require.NoError(t, err)
	return a
}

func TestWritePNG(t *testing.T) {
	tests := []struct {
		name       string
		policy     phenology.Policy
		wantHeight int
	}{
		{"index only", "", 1},
		{"with cover panel", phenology.PolicyPhenological, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WritePNG(&buf, analyze(t, tt.policy)))

			img, err := png.Decode(&buf)
			require.NoError(t, err)
			bounds := img.Bounds()
			assert.Greater(t, bounds.Dx(), 0)
			// Each panel has the same height, so panel count scales the image
			assert.InDelta(t, float64(tt.wantHeight)*float64(bounds.Dx())/3, float64(bounds.Dy()), 2)
		})
	}
}

func TestWritePNGEmptySeries(t *testing.T) {
	a := analyze(t, "")
	a.Series = nil
	assert.Error(t, WritePNG(&bytes.Buffer{}, a))
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, analyze(t, phenology.PolicyFixed)))
	out := buf.String()

	assert.Contains(t, out, "NDVI Time Series with Growth Stages")
	assert.Contains(t, out, "Ground Cover Percentage with Growth Stages")
	assert.Contains(t, out, "Observed NDVI")
	assert.Contains(t, out, "2023-10-03")
	assert.Contains(t, out, phenology.StageGrainFilling)
}

func TestWriteHTMLWithoutCover(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, analyze(t, "")))
	assert.NotContains(t, buf.String(), "Ground Cover Percentage")
}

func TestComparisonCharts(t *testing.T) {
	s := season(t)
	obs := observations(s)
	results := phenology.CompareAlgorithms(obs, s, phenology.Algorithms, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "compare.png")
	require.NoError(t, SaveComparisonPNG(path, results, obs, s))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteComparisonHTML(&buf, results, s))
	for _, alg := range phenology.Algorithms {
		assert.True(t, strings.Contains(buf.String(), string(alg)), alg)
	}
}

func TestComparisonPNGNothingToDraw(t *testing.T) {
	s := season(t)
	results := []phenology.Comparison{{Algorithm: phenology.AlgorithmCubic, Err: phenology.ErrInsufficientData}}
	assert.Error(t, WriteComparisonPNG(&bytes.Buffer{}, results, nil, s))
}
