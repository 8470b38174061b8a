package phenology

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultTrials is the number of bootstrap resamples
	DefaultTrials = 1000

	lowerPercentile = 2.5
	upperPercentile = 97.5

	// fallbackBand is the relative half-width used when no trial succeeds
	fallbackBand = 0.05

	bootstrapPolynomialDegree = 2
)

// Bounds holds the per-day confidence band of a reconstruction
type Bounds struct {
	Lower     []float64
	Upper     []float64
	Trials    int
	Succeeded int
}

// Fallback reports whether the band is the fixed relative band rather than
// bootstrap percentiles
func (b Bounds) Fallback() bool {
	return b.Succeeded == 0
}

// UncertaintyEstimator brackets a reconstruction with bootstrap percentiles of a
// numeric fit refitted to resampled observations
type UncertaintyEstimator struct {
	kind    FitKind
	trials  int
	workers int
	rng     *rand.Rand
	logger  *zap.SugaredLogger
}

// NewUncertaintyEstimator creates an estimator. A nil rng is seeded from the clock.
// Resamples are drawn from rng in trial order, so results for a given seed do not
// depend on the number of workers.
func NewUncertaintyEstimator(kind FitKind, trials, workers int, rng *rand.Rand, logger *zap.SugaredLogger) *UncertaintyEstimator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	if workers < 1 {
		workers = 1
	}
	return &UncertaintyEstimator{
		kind:    kind,
		trials:  trials,
		workers: workers,
		rng:     rng,
		logger:  logger,
	}
}

// NewSeededRand returns a deterministic random source for a seed
func NewSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// Estimate computes lower and upper bounds for each season day. When no trial can be
// fitted the band falls back to primary scaled by 0.95 and 1.05. Every bound is
// clipped to [0, 1].
func (u *UncertaintyEstimator) Estimate(ctx context.Context, obs []Observation, season Season, primary []float64) (Bounds, error) {
	days := season.Days()
	if len(primary) != days {
		return Bounds{}, fmt.Errorf("primary series has %d values, season has %d days", len(primary), days)
	}

	bounds := Bounds{Trials: u.trials}
	xs, ys := observationPoints(obs, season)

	var (
		predictions *mat.Dense
		succeeded   []bool
	)
	if len(obs) > 0 && u.trials > 0 {
		samples := u.drawSamples(len(obs))
		predictions = mat.NewDense(u.trials, days, nil)
		succeeded = make([]bool, u.trials)

		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < u.workers; w++ {
			g.Go(func() error {
				row := make([]float64, days)
				for t := w; t < u.trials; t += u.workers {
					if err := gctx.Err(); err != nil {
						return err
					}
					if u.runTrial(samples[t], xs, ys, row) {
						predictions.SetRow(t, row)
						succeeded[t] = true
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Bounds{}, fmt.Errorf("bootstrap cancelled: %w", err)
		}

		for _, ok := range succeeded {
			if ok {
				bounds.Succeeded++
			}
		}
	}

	bounds.Lower = make([]float64, days)
	bounds.Upper = make([]float64, days)

	if bounds.Succeeded == 0 {
		u.logger.Warnf("no bootstrap trial of %d succeeded for %s fit, using +/-%.0f%% band",
			u.trials, u.kind, fallbackBand*100)
		for d, v := range primary {
			bounds.Lower[d] = clip01(v * (1 - fallbackBand))
			bounds.Upper[d] = clip01(v * (1 + fallbackBand))
		}
		return bounds, nil
	}

	u.logger.Debugf("bootstrap %s fit: %d of %d trials succeeded", u.kind, bounds.Succeeded, u.trials)

	column := make([]float64, u.trials)
	day := make([]float64, 0, bounds.Succeeded)
	for d := 0; d < days; d++ {
		mat.Col(column, d, predictions)
		day = day[:0]
		for t, ok := range succeeded {
			if ok {
				day = append(day, column[t])
			}
		}
		sort.Float64s(day)
		bounds.Lower[d] = clip01(percentile(day, lowerPercentile))
		bounds.Upper[d] = clip01(percentile(day, upperPercentile))
	}
	return bounds, nil
}

// drawSamples draws every resample up front so trial results are independent of scheduling
func (u *UncertaintyEstimator) drawSamples(n int) [][]int {
	samples := make([][]int, u.trials)
	for t := range samples {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = u.rng.IntN(n)
		}
		samples[t] = idx
	}
	return samples
}

// runTrial fits one resample and writes unclipped predictions for every day into row.
// It reports false when the resample cannot support the fit.
func (u *UncertaintyEstimator) runTrial(sample []int, xs, ys, row []float64) bool {
	rx := make([]float64, len(sample))
	ry := make([]float64, len(sample))
	for i, j := range sample {
		rx[i] = xs[j]
		ry[i] = ys[j]
	}
	// Interpolating fits keep the first occurrence of each resampled day; the
	// polynomial fit sees the deduplicated points as well.
	ux, uy := uniquePoints(rx, ry)
	if len(ux) < 2 {
		return false
	}

	curve, err := fitCurve(u.kind, ux, uy, bootstrapPolynomialDegree)
	if err != nil {
		return false
	}
	for d := range row {
		row[d] = curve.Predict(float64(d))
	}
	return true
}
