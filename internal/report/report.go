// Package report renders the textual season summary and the algorithm comparison table.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/chrissnell/phenology/internal/phenology"
	"gonum.org/v1/gonum/floats"
)

const displayDate = "02.01.2006"

// Summary writes the season summary: crop period, peak values, stage timeline and
// per-stage means
func Summary(w io.Writer, a *phenology.Analysis) error {
	p := &printer{w: w}

	p.printf("\n%s\n", strings.Repeat("=", 60))
	p.printf("CROP PHENOLOGY ANALYSIS SUMMARY\n")
	p.printf("%s\n", strings.Repeat("=", 60))
	p.printf("Crop Period: %s to %s\n", a.Season.Start.Format(displayDate), a.Season.End.Format(displayDate))
	p.printf("Total Growing Season: %d days\n", a.Season.Length())
	p.printf("Number of NDVI Observations: %d\n", len(a.Observations))
	p.printf("Reconstruction: %s (%d/%d bootstrap trials succeeded)\n", a.Algorithm, a.Succeeded, a.Trials)

	peak := a.Peak()
	p.printf("Peak NDVI: %.3f on %s (Day %d)\n", a.Schedule.PeakIndex, a.Schedule.PeakDate.Format(displayDate), peak.DayOffset)

	if a.Parameters != nil {
		fractions, percentages := coverSeries(a.Series)
		p.printf("Peak FVC: %.3f\n", floats.Max(fractions))
		p.printf("FVC Parameters (%s) - NDVI_soil: %.3f, NDVI_vegetation: %.3f\n",
			a.Parameters.Policy, a.Parameters.SoilIndex, a.Parameters.VegetationIndex)
		p.printf("Peak Ground Cover: %.1f%%\n", floats.Max(percentages))
	}

	p.printf("\nGROWTH STAGE TIMELINE:\n")
	p.printf("%s\n", strings.Repeat("-", 40))
	for _, anchor := range a.Schedule.Anchors {
		p.printf("%-15s: %s (Day %3d)\n", anchor.Stage, anchor.Date.Format(displayDate), a.Season.DayOffset(anchor.Date))
	}

	stats := phenology.StageStatistics(a.Series)

	p.printf("\nNDVI STATISTICS BY GROWTH STAGE:\n")
	p.printf("%s\n", strings.Repeat("-", 40))
	for _, s := range stats {
		p.printf("%-15s: Mean NDVI = %.3f\n", s.Stage, s.MeanIndex)
	}

	if a.Parameters != nil {
		p.printf("\nFVC STATISTICS BY GROWTH STAGE:\n")
		p.printf("%s\n", strings.Repeat("-", 40))
		for _, s := range stats {
			if s.HasCover {
				p.printf("%-15s: Mean FVC = %.3f\n", s.Stage, s.MeanCover)
			}
		}

		p.printf("\nGROUND COVER PERCENTAGE STATISTICS BY GROWTH STAGE:\n")
		p.printf("%s\n", strings.Repeat("-", 50))
		for _, s := range stats {
			if s.HasCover {
				p.printf("%-15s: Mean Ground Cover = %.1f%%\n", s.Stage, s.MeanCoverPercent)
			}
		}
	}

	return p.err
}

func coverSeries(series []phenology.DailyPoint) (fractions, percentages []float64) {
	for _, d := range series {
		if d.Cover != nil {
			fractions = append(fractions, d.Cover.Fraction)
			percentages = append(percentages, d.Cover.Percentage)
		}
	}
	if len(fractions) == 0 {
		return []float64{0}, []float64{0}
	}
	return fractions, percentages
}

// ComparisonRow is one algorithm's line in the comparison table
type ComparisonRow struct {
	Algorithm phenology.Algorithm
	PeakIndex float64
	PeakDay   int
	RMSE      float64
	Err       error
}

// CompareRows derives peak and observation fit error for each compared algorithm.
// RMSE is measured on in-season observation days and is NaN without any.
func CompareRows(results []phenology.Comparison, obs []phenology.Observation, season phenology.Season) []ComparisonRow {
	rows := make([]ComparisonRow, 0, len(results))
	for _, r := range results {
		row := ComparisonRow{Algorithm: r.Algorithm, Err: r.Err}
		if r.Err == nil && len(r.Values) > 0 {
			row.PeakDay = floats.MaxIdx(r.Values)
			row.PeakIndex = r.Values[row.PeakDay]
			row.RMSE = observationRMSE(r.Values, obs, season)
		}
		rows = append(rows, row)
	}
	return rows
}

func observationRMSE(values []float64, obs []phenology.Observation, season phenology.Season) float64 {
	var sum float64
	var n int
	for _, o := range obs {
		d := season.DayOffset(o.Date)
		if !season.Contains(d) || d >= len(values) {
			continue
		}
		diff := values[d] - o.Index
		sum += diff * diff
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}

// Comparison writes the algorithm comparison table, best observation fit marked
func Comparison(w io.Writer, rows []ComparisonRow) error {
	p := &printer{w: w}

	p.printf("\nAlgorithm Comparison\n")
	p.printf("====================\n\n")
	p.printf("%-15s | %9s | %8s | %9s\n", "Algorithm", "Peak NDVI", "Peak Day", "RMSE(obs)")
	p.printf("----------------+-----------+----------+-----------\n")

	best := -1
	for i, r := range rows {
		if r.Err != nil || math.IsNaN(r.RMSE) {
			continue
		}
		if best < 0 || r.RMSE < rows[best].RMSE {
			best = i
		}
	}

	for i, r := range rows {
		if r.Err != nil {
			p.printf("%-15s | %9s | %8s | %9s  (%v)\n", r.Algorithm, "-", "-", "-", r.Err)
			continue
		}
		marker := ""
		if i == best {
			marker = " <- closest to observations"
		}
		p.printf("%-15s | %9.3f | %8d | %9.4f%s\n", r.Algorithm, r.PeakIndex, r.PeakDay, r.RMSE, marker)
	}

	return p.err
}

// printer keeps the first write error so the formatting code stays linear
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
