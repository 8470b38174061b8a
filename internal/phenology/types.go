// Package phenology reconstructs a continuous daily vegetation index trajectory for one
// crop season from sparse observations, estimates a per-day confidence band, converts the
// trajectory to fractional vegetation cover and labels each day with a growth stage.
package phenology

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Observation is a single vegetation index (NDVI) measurement
type Observation struct {
	Date  time.Time `json:"date"`
	Index float64   `json:"ndvi"`
}

// Season is the inclusive calendar range of one growth cycle, from sowing to harvest
type Season struct {
	Start time.Time `json:"sowing_date"`
	End   time.Time `json:"harvest_date"`
}

// NewSeason truncates both anchors to calendar days and verifies their order
func NewSeason(start, end time.Time) (Season, error) {
	s := Season{Start: truncateDay(start), End: truncateDay(end)}
	if s.End.Before(s.Start) {
		return Season{}, fmt.Errorf("%w: harvest date %s is before sowing date %s",
			ErrConfiguration, s.End.Format("2006-01-02"), s.Start.Format("2006-01-02"))
	}
	return s, nil
}

// Length returns the number of days between sowing and harvest
func (s Season) Length() int {
	return s.DayOffset(s.End)
}

// Days returns the number of calendar days in the season, both endpoints included
func (s Season) Days() int {
	return s.Length() + 1
}

// DayOffset returns the number of whole calendar days elapsed since sowing.
// Dates before sowing yield negative offsets.
func (s Season) DayOffset(t time.Time) int {
	return int(math.Round(julianDay(t) - julianDay(s.Start)))
}

// Date returns the calendar date for a day offset
func (s Season) Date(offset int) time.Time {
	return s.Start.AddDate(0, 0, offset)
}

// Contains reports whether a day offset falls inside the season
func (s Season) Contains(offset int) bool {
	return offset >= 0 && offset <= s.Length()
}

// julianDay counts calendar days independently of the time of day and of DST shifts
func julianDay(t time.Time) float64 {
	y, m, d := t.Date()
	return julian.CalendarGregorianToJD(y, int(m), float64(d))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Cover holds fractional vegetation cover for a day with its confidence bounds.
// Percentages are the fractions scaled to ground cover percent.
type Cover struct {
	Fraction        float64 `json:"fvc"`
	Lower           float64 `json:"fvc_lower"`
	Upper           float64 `json:"fvc_upper"`
	Percentage      float64 `json:"ground_cover_pct"`
	PercentageLower float64 `json:"ground_cover_pct_lower"`
	PercentageUpper float64 `json:"ground_cover_pct_upper"`
}

// DailyPoint is one reconstructed day of the season
type DailyPoint struct {
	Date      time.Time `json:"date"`
	DayOffset int       `json:"days_after_sowing"`
	Index     float64   `json:"ndvi"`
	Lower     float64   `json:"ndvi_lower"`
	Upper     float64   `json:"ndvi_upper"`
	Cover     *Cover    `json:"cover,omitempty"`
	Stage     string    `json:"growth_stage"`
}

// observationPoints returns observation day offsets and index values in input order
func observationPoints(obs []Observation, season Season) ([]float64, []float64) {
	xs := make([]float64, len(obs))
	ys := make([]float64, len(obs))
	for i, o := range obs {
		xs[i] = float64(season.DayOffset(o.Date))
		ys[i] = o.Index
	}
	return xs, ys
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clipAll(values []float64) {
	for i, v := range values {
		values[i] = clip01(v)
	}
}
