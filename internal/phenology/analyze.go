package phenology

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Options configures an analysis run
type Options struct {
	// Algorithm selects the reconstruction strategy
	Algorithm Algorithm

	// Policy selects normalization parameter estimation; empty disables cover output
	Policy Policy

	// Trials is the number of bootstrap resamples (e.g., 1000). Zero skips resampling
	// and every day gets the +/-5% fallback band; DefaultOptions sets DefaultTrials.
	Trials int

	// Seed makes bootstrap resampling and template jitter reproducible; 0 seeds from the clock
	Seed int64

	// Workers is the number of goroutines running bootstrap trials
	Workers int

	// UncertaintyFit overrides the fit used for bootstrap trials; empty derives it
	// from Algorithm
	UncertaintyFit FitKind

	// PolynomialDegree caps the polynomial reconstruction degree
	PolynomialDegree int

	// Jitter adds small random noise to the physiological template
	Jitter bool
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Algorithm:        AlgorithmGuided,
		Policy:           PolicyPhenological,
		Trials:           DefaultTrials,
		Workers:          1,
		PolynomialDegree: DefaultPolynomialDegree,
	}
}

// Validate checks option names and ranges
func (o Options) Validate() error {
	if _, err := ParseAlgorithm(string(o.Algorithm)); err != nil {
		return err
	}
	if o.Policy != "" {
		if _, err := ParsePolicy(string(o.Policy)); err != nil {
			return err
		}
	}
	if o.UncertaintyFit != "" {
		if _, err := ParseFitKind(string(o.UncertaintyFit)); err != nil {
			return err
		}
	}
	if o.Trials < 0 {
		return fmt.Errorf("%w: trials must not be negative, got %d", ErrConfiguration, o.Trials)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrConfiguration, o.Workers)
	}
	return nil
}

// Analysis is the immutable result of one pipeline run
type Analysis struct {
	Season       Season                   `json:"season"`
	Algorithm    Algorithm                `json:"algorithm"`
	Observations []Observation            `json:"observations"`
	Parameters   *NormalizationParameters `json:"parameters,omitempty"`
	Series       []DailyPoint             `json:"series"`
	Schedule     StageSchedule            `json:"schedule"`
	Trials       int                      `json:"bootstrap_trials"`
	Succeeded    int                      `json:"bootstrap_succeeded"`
	CreatedAt    time.Time                `json:"created_at"`
}

// Peak returns the day with the highest reconstructed index
func (a *Analysis) Peak() DailyPoint {
	for _, p := range a.Series {
		if p.Date.Equal(a.Schedule.PeakDate) {
			return p
		}
	}
	return DailyPoint{}
}

// Analyzer runs normalization, reconstruction, uncertainty estimation and stage
// labeling for one season
type Analyzer struct {
	opts   Options
	logger *zap.SugaredLogger
}

// NewAnalyzer validates options and creates an Analyzer. Alias names in options are
// resolved to canonical names.
func NewAnalyzer(opts Options, logger *zap.SugaredLogger) (*Analyzer, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Algorithm, _ = ParseAlgorithm(string(opts.Algorithm))
	if opts.Policy != "" {
		opts.Policy, _ = ParsePolicy(string(opts.Policy))
	}
	if opts.UncertaintyFit == "" {
		opts.UncertaintyFit = opts.Algorithm.UncertaintyFit()
	}
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.PolynomialDegree < 1 {
		opts.PolynomialDegree = DefaultPolynomialDegree
	}
	return &Analyzer{opts: opts, logger: logger}, nil
}

// Options returns the resolved options
func (a *Analyzer) Options() Options {
	return a.opts
}

// Analyze runs the full pipeline on a date-sorted copy of the observations. Those
// outside the season inform peak and parameter estimates but are never placed on
// the daily series.
func (a *Analyzer) Analyze(ctx context.Context, obs []Observation, season Season) (*Analysis, error) {
	start := time.Now()

	obs = append([]Observation(nil), obs...)
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })

	var params *NormalizationParameters
	if a.opts.Policy != "" {
		p, err := EstimateParameters(obs, season, a.opts.Policy)
		if err != nil {
			return nil, fmt.Errorf("estimating normalization parameters: %w", err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params = &p
		a.logger.Infof("normalization parameters (%s): soil=%.4f vegetation=%.4f",
			p.Policy, p.SoilIndex, p.VegetationIndex)
	}

	seed := a.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var rec Reconstructor
	var err error
	if a.opts.Jitter {
		rec, err = NewReconstructor(a.opts.Algorithm, a.opts.PolynomialDegree, NewSeededRand(seed+1), a.logger)
	} else {
		rec, err = NewReconstructor(a.opts.Algorithm, a.opts.PolynomialDegree, nil, a.logger)
	}
	if err != nil {
		return nil, err
	}

	values, err := rec.Reconstruct(obs, season)
	if err != nil {
		return nil, err
	}

	estimator := NewUncertaintyEstimator(a.opts.UncertaintyFit, a.opts.Trials, a.opts.Workers, NewSeededRand(seed), a.logger)
	bounds, err := estimator.Estimate(ctx, obs, season, values)
	if err != nil {
		return nil, err
	}

	peakDate, peakIndex := FindPeak(season, values)
	schedule := ScheduleStages(season, peakDate, peakIndex)

	series := make([]DailyPoint, len(values))
	for d, v := range values {
		date := season.Date(d)
		series[d] = DailyPoint{
			Date:      date,
			DayOffset: d,
			Index:     v,
			Lower:     bounds.Lower[d],
			Upper:     bounds.Upper[d],
			Stage:     schedule.Label(date),
		}
		if params != nil {
			c, err := params.Cover(v, bounds.Lower[d], bounds.Upper[d])
			if err != nil {
				return nil, err
			}
			series[d].Cover = &c
		}
	}

	a.logger.Infof("%s reconstruction of %d days from %d observations took %v (peak %.3f on %s)",
		a.opts.Algorithm, len(series), len(obs), time.Since(start),
		peakIndex, peakDate.Format("02.01.2006"))

	return &Analysis{
		Season:       season,
		Algorithm:    a.opts.Algorithm,
		Observations: obs,
		Parameters:   params,
		Series:       series,
		Schedule:     schedule,
		Trials:       bounds.Trials,
		Succeeded:    bounds.Succeeded,
		CreatedAt:    time.Now(),
	}, nil
}

// StageSummary holds mean values over the days labeled with one growth stage
type StageSummary struct {
	Stage            string  `json:"stage"`
	Days             int     `json:"days"`
	MeanIndex        float64 `json:"mean_ndvi"`
	MeanCover        float64 `json:"mean_fvc,omitempty"`
	MeanCoverPercent float64 `json:"mean_ground_cover_pct,omitempty"`
	HasCover         bool    `json:"-"`
}

// StageStatistics summarizes each stage that labels at least one day, in schedule order
func StageStatistics(series []DailyPoint) []StageSummary {
	byStage := make(map[string][]DailyPoint)
	for _, p := range series {
		byStage[p.Stage] = append(byStage[p.Stage], p)
	}

	var summaries []StageSummary
	for _, stage := range append(append([]string(nil), Stages...), StageUnknown) {
		points := byStage[stage]
		if len(points) == 0 {
			continue
		}
		index := make([]float64, len(points))
		var cover []float64
		for i, p := range points {
			index[i] = p.Index
			if p.Cover != nil {
				cover = append(cover, p.Cover.Fraction)
			}
		}
		s := StageSummary{Stage: stage, Days: len(points), MeanIndex: stat.Mean(index, nil)}
		if len(cover) == len(points) {
			s.HasCover = true
			s.MeanCover = stat.Mean(cover, nil)
			s.MeanCoverPercent = CoverPercentage(s.MeanCover)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// Comparison is the result of one algorithm in a side-by-side run
type Comparison struct {
	Algorithm Algorithm `json:"algorithm"`
	Values    []float64 `json:"values,omitempty"`
	Err       error     `json:"-"`
}

// CompareAlgorithms reconstructs the same observations with each algorithm. A
// failing algorithm records its error and does not stop the others.
func CompareAlgorithms(obs []Observation, season Season, algorithms []Algorithm, logger *zap.SugaredLogger) []Comparison {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	results := make([]Comparison, 0, len(algorithms))
	for _, alg := range algorithms {
		c := Comparison{Algorithm: alg}
		rec, err := NewReconstructor(alg, DefaultPolynomialDegree, nil, logger)
		if err == nil {
			c.Values, err = rec.Reconstruct(obs, season)
		}
		if err != nil {
			if errors.Is(err, ErrInsufficientData) {
				logger.Warnf("%s: %v", alg, err)
			} else {
				logger.Errorf("%s: %v", alg, err)
			}
			c.Err = err
		}
		results = append(results, c)
	}
	return results
}
