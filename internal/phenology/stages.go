package phenology

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Growth stage names
const (
	StageSowing         = "Sowing"
	StageEmergence      = "Emergence"
	StageTillering      = "Tillering"
	StageStemElongation = "Stem Elongation"
	StageBooting        = "Booting"
	StageHeading        = "Heading"
	StageFlowering      = "Flowering"
	StageGrainFilling   = "Grain Filling"
	StageMaturity       = "Maturity"
	StageHarvest        = "Harvest"
	StageUnknown        = "Unknown"
)

// Stages lists growth stages in schedule order
var Stages = []string{
	StageSowing,
	StageEmergence,
	StageTillering,
	StageStemElongation,
	StageBooting,
	StageHeading,
	StageFlowering,
	StageGrainFilling,
	StageMaturity,
	StageHarvest,
}

// Offsets of stage anchors from sowing, from the peak and from harvest, in days
const (
	emergenceAfterSowing      = 10
	tilleringAfterSowing      = 45
	stemElongationAfterSowing = 120
	bootingBeforePeak         = 20
	headingBeforePeak         = 10
	grainFillingAfterPeak     = 15
	maturityBeforeHarvest     = 25
)

// Anchor is the start date of a growth stage
type Anchor struct {
	Stage string    `json:"stage"`
	Date  time.Time `json:"date"`
}

// StageSchedule holds the stage anchors of a season in schedule order together with
// the peak of the reconstructed trajectory
type StageSchedule struct {
	Anchors   []Anchor  `json:"anchors"`
	PeakDate  time.Time `json:"peak_date"`
	PeakIndex float64   `json:"peak_ndvi"`

	sorted []Anchor
}

// FindPeak returns the date and value of the first maximum of a daily series
func FindPeak(season Season, values []float64) (time.Time, float64) {
	if len(values) == 0 {
		return season.Start, 0
	}
	i := floats.MaxIdx(values)
	return season.Date(i), values[i]
}

// ScheduleStages places stage anchors relative to sowing, the peak and harvest.
// Anchors are not forced into chronological order; a short season or an early peak
// can put a peak-relative anchor before a sowing-relative one.
func ScheduleStages(season Season, peakDate time.Time, peakIndex float64) StageSchedule {
	day := func(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }

	s := StageSchedule{
		Anchors: []Anchor{
			{StageSowing, season.Start},
			{StageEmergence, day(season.Start, emergenceAfterSowing)},
			{StageTillering, day(season.Start, tilleringAfterSowing)},
			{StageStemElongation, day(season.Start, stemElongationAfterSowing)},
			{StageBooting, day(peakDate, -bootingBeforePeak)},
			{StageHeading, day(peakDate, -headingBeforePeak)},
			{StageFlowering, peakDate},
			{StageGrainFilling, day(peakDate, grainFillingAfterPeak)},
			{StageMaturity, day(season.End, -maturityBeforeHarvest)},
			{StageHarvest, season.End},
		},
		PeakDate:  peakDate,
		PeakIndex: peakIndex,
	}
	s.sorted = append([]Anchor(nil), s.Anchors...)
	sort.SliceStable(s.sorted, func(i, j int) bool {
		return s.sorted[i].Date.Before(s.sorted[j].Date)
	})
	return s
}

// Anchor returns the anchor date of a stage
func (s StageSchedule) Anchor(stage string) (time.Time, bool) {
	for _, a := range s.Anchors {
		if a.Stage == stage {
			return a.Date, true
		}
	}
	return time.Time{}, false
}

// Label returns the stage for a date: the stage whose anchor is the latest one on
// or before the date, with ties going to the stage later in schedule order. Harvest
// labels only its own date, and dates before every anchor are Unknown.
func (s StageSchedule) Label(date time.Time) string {
	if harvest, ok := s.Anchor(StageHarvest); ok && sameDay(date, harvest) {
		return StageHarvest
	}

	label := StageUnknown
	for _, a := range s.sorted {
		if a.Date.After(date) {
			break
		}
		if a.Stage == StageHarvest {
			continue
		}
		label = a.Stage
	}
	return label
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
