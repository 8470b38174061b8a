package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/pkg/responseformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, policy phenology.Policy) *phenology.Analysis {
	t.Helper()
	season, err := phenology.NewSeason(
		time.Date(2023, 10, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	obs := []phenology.Observation{
		{Date: season.Date(20), Index: 0.22},
		{Date: season.Date(90), Index: 0.41},
		{Date: season.Date(170), Index: 0.67},
		{Date: season.Date(215), Index: 0.83},
		{Date: season.Date(265), Index: 0.31},
	}

	opts := phenology.DefaultOptions()
	opts.Policy = policy
	opts.Trials = 40
	opts.Seed = 7
	analyzer, err := phenology.NewAnalyzer(opts, nil)
	require.NoError(t, err)

	a, err := analyzer.Analyze(context.Background(), obs, season)
	require.NoError(t, err)
	return a
}

func TestHeader(t *testing.T) {
	assert.Equal(t, []string{
		"Date", "Days_After_Sowing", "NDVI_Interpolated", "NDVI_Lower_CI", "NDVI_Upper_CI",
		"Growth_Stage", "Sowing_Date", "Harvest_Date",
	}, Header(false))

	withCover := Header(true)
	assert.Len(t, withCover, 14)
	assert.Equal(t, "FVC_Interpolated", withCover[5])
	assert.Equal(t, "Ground_Cover_Percentage", withCover[8])
	assert.Equal(t, "Growth_Stage", withCover[11])
}

func TestWriteCSV(t *testing.T) {
	a := analyze(t, phenology.PolicyPhenological)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, a))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, a.Season.Days()+1)
	assert.Equal(t, Header(true), records[0])

	first := records[1]
	assert.Equal(t, "2023-10-03", first[0])
	assert.Equal(t, "0", first[1])
	assert.Equal(t, phenology.StageSowing, first[11])
	assert.Equal(t, "2023-10-03", first[12])
	assert.Equal(t, "2024-07-15", first[13])

	last := records[len(records)-1]
	assert.Equal(t, "2024-07-15", last[0])
	assert.Equal(t, "286", last[1])
	assert.Equal(t, phenology.StageHarvest, last[11])
}

func TestWriteCSVWithoutCover(t *testing.T) {
	a := analyze(t, "")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, a))
	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, strings.Join(Header(false), ","), header)
}

func TestWriteCSVMissingCover(t *testing.T) {
	a := analyze(t, phenology.PolicyFixed)
	a.Series[3].Cover = nil
	assert.Error(t, WriteCSV(&bytes.Buffer{}, a))
}

func TestNewDocument(t *testing.T) {
	a := analyze(t, phenology.PolicyFixed)
	doc := NewDocument(a)

	assert.Equal(t, 286, doc.SeasonLength)
	assert.Equal(t, phenology.AlgorithmGuided, doc.Algorithm)
	require.Len(t, doc.Stages, len(phenology.Stages))
	assert.Equal(t, phenology.StageSowing, doc.Stages[0].Stage)
	assert.Equal(t, 0, doc.Stages[0].DaysAfterSowing)
	assert.Equal(t, phenology.StageHarvest, doc.Stages[len(doc.Stages)-1].Stage)
	assert.Equal(t, 286, doc.Stages[len(doc.Stages)-1].DaysAfterSowing)

	assert.True(t, doc.Peak.Date.Equal(a.Schedule.PeakDate))
	assert.Equal(t, a.Schedule.PeakIndex, doc.Peak.Index)
	require.NotNil(t, doc.Peak.CoverFraction)
	require.NotNil(t, doc.Peak.GroundCoverPercent)
	assert.InDelta(t, *doc.Peak.CoverFraction*100, *doc.Peak.GroundCoverPercent, 1e-9)
}

func TestSaveFormats(t *testing.T) {
	a := analyze(t, phenology.PolicyExtremal)
	dir := t.TempDir()

	for _, format := range []responseformat.Format{responseformat.JSON, responseformat.MsgPack} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(dir, "analysis."+string(format))
			require.NoError(t, Save(path, format, a))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			var doc map[string]any
			require.NoError(t, responseformat.Decode(f, format, &doc))
			assert.Equal(t, string(phenology.AlgorithmGuided), doc["algorithm"])
			series, ok := doc["series"].([]any)
			require.True(t, ok)
			assert.Len(t, series, a.Season.Days())
		})
	}
}

func TestSaveCSVBadPath(t *testing.T) {
	a := analyze(t, phenology.PolicyFixed)
	err := SaveCSV(filepath.Join(t.TempDir(), "missing", "out.csv"), a)
	assert.Error(t, err)
}
