package phenology

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

const (
	guidedBaseline          = 0.05
	guidedGrowthRate        = 0.02
	guidedObservationWeight = 0.9
	guidedInfluenceRadius   = 50
	guidedInfluenceScale    = 15.0
	guidedInfluenceStrength = 0.5
	guidedSmoothingSigma    = 1.5
)

// guidedPhases shape the template between the logistic baseline and typical
// winter cereal development
var guidedPhases = []phase{
	{name: "pre-emergence", start: 0, end: 10, from: 0.05, to: 0.05, decay: 5},
	{name: "emergence", start: 10, end: 45, from: 0.05, to: 0.30, weight: 0.4},
	{name: "tillering", start: 45, end: 120, from: 0.30, to: 0.65, weight: 0.5},
	{name: "stem elongation", start: 120, end: 200, from: 0.65, to: 0.85, weight: 0.6},
	{name: "booting", start: 200, end: 230, from: 0.85, to: 0.95, weight: 0.7},
	{name: "flowering", start: 230, end: 245, from: 0.95, to: 0.95, weight: 0.8},
	{name: "grain filling", start: 245, end: 270, from: 0.95, to: 0.65, weight: 0.6},
	{name: "maturity", start: 270, end: seasonEnd, from: 0.65, to: 0.15, weight: 0.7},
}

// GuidedReconstructor blends a logistic baseline with a phase template, pulls the
// result toward observations with exponentially decaying influence and smooths it
type GuidedReconstructor struct {
	logger *zap.SugaredLogger
	sigma  float64
}

// NewGuidedReconstructor creates a GuidedReconstructor
func NewGuidedReconstructor(logger *zap.SugaredLogger) *GuidedReconstructor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GuidedReconstructor{logger: logger, sigma: guidedSmoothingSigma}
}

// Reconstruct runs template, observation pull and Gaussian smoothing in turn
func (g *GuidedReconstructor) Reconstruct(obs []Observation, season Season) ([]float64, error) {
	values := g.template(obs, season)
	pullTowardObservations(values, obs, season)
	values = GaussianFilter(values, g.sigma)
	clipAll(values)
	return values, nil
}

// template evaluates the baseline blended with the phase targets
func (g *GuidedReconstructor) template(obs []Observation, season Season) []float64 {
	length := season.Length()
	peak := observedPeak(obs)

	inflection := float64(length) / 2
	if len(obs) > 0 {
		xs, _ := observationPoints(obs, season)
		inflection = stat.Mean(xs, nil)
	} else {
		g.logger.Debugf("no observations, guided baseline uses peak %.2f at day %.0f", peak, inflection)
	}

	values := make([]float64, season.Days())
	for d := range values {
		base := clip01(logistic(float64(d), guidedBaseline, peak, guidedGrowthRate, inflection))
		ph := phaseAt(guidedPhases, d)
		w := ph.blendWeight(d)
		values[d] = clip01((1-w)*base + w*ph.target(ph.progress(d, length)))
	}
	return values
}

// pullTowardObservations sets each observed in-season day close to its observation
// and draws neighboring days toward it with weight decaying over distance
func pullTowardObservations(values []float64, obs []Observation, season Season) {
	length := season.Length()
	for _, o := range obs {
		c := season.DayOffset(o.Date)
		if !season.Contains(c) {
			continue
		}
		values[c] = clip01(guidedObservationWeight*o.Index + (1-guidedObservationWeight)*values[c])

		lo := max(0, c-guidedInfluenceRadius+1)
		hi := min(length, c+guidedInfluenceRadius-1)
		for i := lo; i <= hi; i++ {
			if i == c {
				continue
			}
			dist := math.Abs(float64(i - c))
			influence := guidedInfluenceStrength * math.Exp(-dist/guidedInfluenceScale)
			values[i] = clip01((1-influence)*values[i] + influence*o.Index)
		}
	}
}
