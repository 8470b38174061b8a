package phenology

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Reconstructor produces one index value per season day from sparse observations.
// Implementations return exactly season.Days() values, each clipped to [0, 1].
type Reconstructor interface {
	Reconstruct(obs []Observation, season Season) ([]float64, error)
}

// Algorithm identifies the reconstruction strategy
type Algorithm string

const (
	// AlgorithmLinear interpolates linearly between observations
	AlgorithmLinear Algorithm = "linear-fit"

	// AlgorithmCubic fits a not-a-knot cubic spline through observations
	AlgorithmCubic Algorithm = "cubic-fit"

	// AlgorithmPolynomial fits a least squares polynomial of degree up to 3
	AlgorithmPolynomial Algorithm = "polynomial-fit"

	// AlgorithmLogistic blends a fixed logistic growth curve with observations
	AlgorithmLogistic Algorithm = "logistic"

	// AlgorithmGuided pulls a phase-shaped growth template toward observations and smooths it
	AlgorithmGuided Algorithm = "guided"

	// AlgorithmPhysiological blends a crop development template with observations
	AlgorithmPhysiological Algorithm = "physiological"
)

// Algorithms lists every reconstruction strategy in comparison order
var Algorithms = []Algorithm{
	AlgorithmLinear,
	AlgorithmCubic,
	AlgorithmPolynomial,
	AlgorithmLogistic,
	AlgorithmGuided,
	AlgorithmPhysiological,
}

var algorithmAliases = map[string]Algorithm{
	"linear":        AlgorithmLinear,
	"cubic":         AlgorithmCubic,
	"polynomial":    AlgorithmPolynomial,
	"sigmoid":       AlgorithmLogistic,
	"balanced":      AlgorithmGuided,
	"physiological": AlgorithmPhysiological,
}

// ParseAlgorithm resolves an algorithm name. Names are case-insensitive.
func ParseAlgorithm(name string) (Algorithm, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, a := range Algorithms {
		if string(a) == n {
			return a, nil
		}
	}
	if a, ok := algorithmAliases[n]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown algorithm %q", ErrConfiguration, name)
}

// fitKind returns the numeric fit behind an algorithm, if it has one
func (a Algorithm) fitKind() (FitKind, bool) {
	switch a {
	case AlgorithmLinear:
		return FitLinear, true
	case AlgorithmCubic:
		return FitCubic, true
	case AlgorithmPolynomial:
		return FitPolynomial, true
	}
	return "", false
}

// UncertaintyFit returns the fit used for bootstrap trials of an algorithm.
// Template-based algorithms are bracketed by a linear bootstrap.
func (a Algorithm) UncertaintyFit() FitKind {
	if k, ok := a.fitKind(); ok {
		return k
	}
	return FitLinear
}

// NewReconstructor creates a Reconstructor for the given algorithm.
// noise adds jitter to the physiological template; nil disables it.
func NewReconstructor(alg Algorithm, polynomialDegree int, noise *rand.Rand, logger *zap.SugaredLogger) (Reconstructor, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if polynomialDegree < 1 {
		polynomialDegree = DefaultPolynomialDegree
	}

	switch alg {
	case AlgorithmLinear, AlgorithmCubic, AlgorithmPolynomial:
		kind, _ := alg.fitKind()
		return &FitReconstructor{kind: kind, degree: polynomialDegree}, nil
	case AlgorithmLogistic:
		return NewLogisticReconstructor(), nil
	case AlgorithmGuided:
		return NewGuidedReconstructor(logger), nil
	case AlgorithmPhysiological:
		return NewPhysiologicalReconstructor(noise), nil
	}
	return nil, fmt.Errorf("%w: unknown algorithm %q", ErrConfiguration, alg)
}

// FitReconstructor samples a numeric fit through all observations at every season day
type FitReconstructor struct {
	kind   FitKind
	degree int
}

// Reconstruct fits the observations and evaluates the fit on each season day
func (f *FitReconstructor) Reconstruct(obs []Observation, season Season) ([]float64, error) {
	xs, ys := observationPoints(obs, season)
	curve, err := fitCurve(f.kind, xs, ys, f.degree)
	if err != nil {
		return nil, fmt.Errorf("%s reconstruction: %w", f.kind, err)
	}
	return evaluate(curve, season.Days()), nil
}

const (
	logisticBaseline          = 0.05
	logisticGrowthRate        = 0.02
	logisticInflectionDay     = 240
	logisticObservationWeight = 0.8
)

// LogisticReconstructor evaluates a fixed logistic growth curve scaled to the observed
// peak and nudges the days that carry an observation toward the observed value
type LogisticReconstructor struct {
	baseline   float64
	rate       float64
	inflection float64
	weight     float64
}

// NewLogisticReconstructor creates a LogisticReconstructor with the standard curve shape
func NewLogisticReconstructor() *LogisticReconstructor {
	return &LogisticReconstructor{
		baseline:   logisticBaseline,
		rate:       logisticGrowthRate,
		inflection: logisticInflectionDay,
		weight:     logisticObservationWeight,
	}
}

// Reconstruct evaluates the curve and blends in every in-season observation
func (l *LogisticReconstructor) Reconstruct(obs []Observation, season Season) ([]float64, error) {
	peak := observedPeak(obs)
	values := make([]float64, season.Days())
	for d := range values {
		values[d] = logistic(float64(d), l.baseline, peak, l.rate, l.inflection)
	}
	clipAll(values)
	blendObservations(values, obs, season, l.weight)
	return values, nil
}

func logistic(x, baseline, peak, rate, inflection float64) float64 {
	return baseline + (peak-baseline)/(1+math.Exp(-rate*(x-inflection)))
}

// observedPeak returns the largest observed index, or the full-canopy reference
// when there are no observations
func observedPeak(obs []Observation) float64 {
	if len(obs) == 0 {
		return DefaultVegetationIndex
	}
	ys := make([]float64, len(obs))
	for i, o := range obs {
		ys[i] = o.Index
	}
	return floats.Max(ys)
}

// blendObservations replaces the value on each observed in-season day with
// weight*observed + (1-weight)*current, clipping the result
func blendObservations(values []float64, obs []Observation, season Season, weight float64) {
	for _, o := range obs {
		d := season.DayOffset(o.Date)
		if !season.Contains(d) {
			continue
		}
		values[d] = clip01(weight*o.Index + (1-weight)*values[d])
	}
}
