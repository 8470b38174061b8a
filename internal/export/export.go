// Package export writes analysis results as CSV, JSON or MessagePack.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/pkg/responseformat"
)

const dateLayout = "2006-01-02"

// Column names of the daily CSV, in output order
var (
	indexColumns  = []string{"Date", "Days_After_Sowing", "NDVI_Interpolated", "NDVI_Lower_CI", "NDVI_Upper_CI"}
	coverColumns  = []string{"FVC_Interpolated", "FVC_Lower_CI", "FVC_Upper_CI"}
	groundColumns = []string{"Ground_Cover_Percentage", "Ground_Cover_Lower_CI", "Ground_Cover_Upper_CI"}
	trailColumns  = []string{"Growth_Stage", "Sowing_Date", "Harvest_Date"}
)

// Header returns the CSV header. Cover columns appear only for normalized analyses.
func Header(withCover bool) []string {
	header := append([]string{}, indexColumns...)
	if withCover {
		header = append(header, coverColumns...)
		header = append(header, groundColumns...)
	}
	return append(header, trailColumns...)
}

// WriteCSV writes one row per season day
func WriteCSV(w io.Writer, a *phenology.Analysis) error {
	withCover := a.Parameters != nil
	cw := csv.NewWriter(w)

	if err := cw.Write(Header(withCover)); err != nil {
		return err
	}

	sowing := a.Season.Start.Format(dateLayout)
	harvest := a.Season.End.Format(dateLayout)
	for _, p := range a.Series {
		row := []string{
			p.Date.Format(dateLayout),
			strconv.Itoa(p.DayOffset),
			formatFloat(p.Index),
			formatFloat(p.Lower),
			formatFloat(p.Upper),
		}
		if withCover {
			c := p.Cover
			if c == nil {
				return fmt.Errorf("day %d has no cover values", p.DayOffset)
			}
			row = append(row,
				formatFloat(c.Fraction), formatFloat(c.Lower), formatFloat(c.Upper),
				formatFloat(c.Percentage), formatFloat(c.PercentageLower), formatFloat(c.PercentageUpper))
		}
		row = append(row, p.Stage, sowing, harvest)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// StageEntry is one anchor of the stage timeline
type StageEntry struct {
	Stage           string    `json:"stage"`
	Date            time.Time `json:"date"`
	DaysAfterSowing int       `json:"days_after_sowing"`
}

// Peak summarizes the day of maximum index
type Peak struct {
	Date               time.Time `json:"date"`
	DaysAfterSowing    int       `json:"days_after_sowing"`
	Index              float64   `json:"ndvi"`
	CoverFraction      *float64  `json:"fvc,omitempty"`
	GroundCoverPercent *float64  `json:"ground_cover_pct,omitempty"`
}

// Document is the structured export of an analysis
type Document struct {
	SowingDate   time.Time                          `json:"sowing_date"`
	HarvestDate  time.Time                          `json:"harvest_date"`
	SeasonLength int                                `json:"season_length_days"`
	Algorithm    phenology.Algorithm                `json:"algorithm"`
	Parameters   *phenology.NormalizationParameters `json:"parameters,omitempty"`
	Trials       int                                `json:"bootstrap_trials"`
	Succeeded    int                                `json:"bootstrap_succeeded"`
	Peak         Peak                               `json:"peak"`
	Stages       []StageEntry                       `json:"stages"`
	Statistics   []phenology.StageSummary           `json:"stage_statistics"`
	Observations []phenology.Observation            `json:"observations"`
	Series       []phenology.DailyPoint             `json:"series"`
	CreatedAt    time.Time                          `json:"created_at"`
}

// NewDocument collects the exportable view of an analysis
func NewDocument(a *phenology.Analysis) Document {
	peak := a.Peak()
	doc := Document{
		SowingDate:   a.Season.Start,
		HarvestDate:  a.Season.End,
		SeasonLength: a.Season.Length(),
		Algorithm:    a.Algorithm,
		Parameters:   a.Parameters,
		Trials:       a.Trials,
		Succeeded:    a.Succeeded,
		Peak: Peak{
			Date:            peak.Date,
			DaysAfterSowing: peak.DayOffset,
			Index:           peak.Index,
		},
		Stages:       StageTimeline(a),
		Statistics:   phenology.StageStatistics(a.Series),
		Observations: a.Observations,
		Series:       a.Series,
		CreatedAt:    a.CreatedAt,
	}
	if peak.Cover != nil {
		doc.Peak.CoverFraction = &peak.Cover.Fraction
		doc.Peak.GroundCoverPercent = &peak.Cover.Percentage
	}
	return doc
}

// StageTimeline lists the stage anchors in schedule order with their day offsets
func StageTimeline(a *phenology.Analysis) []StageEntry {
	entries := make([]StageEntry, 0, len(a.Schedule.Anchors))
	for _, anchor := range a.Schedule.Anchors {
		entries = append(entries, StageEntry{
			Stage:           anchor.Stage,
			Date:            anchor.Date,
			DaysAfterSowing: a.Season.DayOffset(anchor.Date),
		})
	}
	return entries
}

// Write encodes the analysis document in format
func Write(w io.Writer, format responseformat.Format, a *phenology.Analysis) error {
	return responseformat.Encode(w, format, NewDocument(a))
}

// SaveCSV writes the daily CSV to path
func SaveCSV(path string, a *phenology.Analysis) error {
	return saveFile(path, func(w io.Writer) error { return WriteCSV(w, a) })
}

// Save writes the analysis document to path in format
func Save(path string, format responseformat.Format, a *phenology.Analysis) error {
	return saveFile(path, func(w io.Writer) error { return Write(w, format, a) })
}

func saveFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
