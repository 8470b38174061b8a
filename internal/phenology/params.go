package phenology

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Policy selects how the soil and full-vegetation reference indices are estimated
type Policy string

const (
	// PolicyFixed uses published reference values
	PolicyFixed Policy = "fixed"
	// PolicyExtremal derives the references from the observed minimum and maximum
	PolicyExtremal Policy = "extremal"
	// PolicyPhenological derives the references from early-season and mid-season quantiles
	PolicyPhenological Policy = "phenological"
)

const (
	DefaultSoilIndex       = 0.15
	DefaultVegetationIndex = 0.85

	minSoilIndex       = 0.05
	maxVegetationIndex = 0.95
	extremalMargin     = 0.02

	earlySeasonDays    = 30
	midSeasonStartDay  = 60
	midSeasonEndDay    = 120
	soilQuantile       = 25
	vegetationQuantile = 75
)

var policyAliases = map[string]Policy{
	"fixed":        PolicyFixed,
	"literature":   PolicyFixed,
	"extremal":     PolicyExtremal,
	"data_driven":  PolicyExtremal,
	"data-driven":  PolicyExtremal,
	"phenological": PolicyPhenological,
	"seasonal":     PolicyPhenological,
}

// ParsePolicy resolves a policy name. Names are case-insensitive.
func ParsePolicy(name string) (Policy, error) {
	p, ok := policyAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: unknown normalization policy %q", ErrConfiguration, name)
	}
	return p, nil
}

// NormalizationParameters are the reference indices for bare soil and full canopy
type NormalizationParameters struct {
	SoilIndex       float64 `json:"ndvi_soil"`
	VegetationIndex float64 `json:"ndvi_vegetation"`
	Policy          Policy  `json:"policy"`
}

// Validate rejects parameters that cannot normalize an index
func (p NormalizationParameters) Validate() error {
	if p.VegetationIndex <= p.SoilIndex {
		return fmt.Errorf("%w: vegetation index %.4f must exceed soil index %.4f",
			ErrDegenerateParameters, p.VegetationIndex, p.SoilIndex)
	}
	return nil
}

// EstimateParameters computes normalization parameters from observations under a policy.
// Observations outside the season still contribute to the estimate.
func EstimateParameters(obs []Observation, season Season, policy Policy) (NormalizationParameters, error) {
	params := NormalizationParameters{
		SoilIndex:       DefaultSoilIndex,
		VegetationIndex: DefaultVegetationIndex,
		Policy:          policy,
	}

	switch policy {
	case PolicyFixed:
		return params, nil

	case PolicyExtremal:
		if len(obs) == 0 {
			return params, fmt.Errorf("%w: extremal policy needs at least one observation", ErrInsufficientData)
		}
		_, ys := observationPoints(obs, season)
		params.SoilIndex = max(minSoilIndex, floats.Min(ys)-extremalMargin)
		params.VegetationIndex = min(maxVegetationIndex, floats.Max(ys)+extremalMargin)
		return params, nil

	case PolicyPhenological:
		var early, mid []float64
		for _, o := range obs {
			offset := season.DayOffset(o.Date)
			if offset <= earlySeasonDays {
				early = append(early, o.Index)
			}
			if offset >= midSeasonStartDay && offset <= midSeasonEndDay {
				mid = append(mid, o.Index)
			}
		}
		if len(early) > 0 {
			sort.Float64s(early)
			params.SoilIndex = percentile(early, soilQuantile)
		}
		if len(mid) > 0 {
			sort.Float64s(mid)
			params.VegetationIndex = percentile(mid, vegetationQuantile)
		}
		params.SoilIndex = max(minSoilIndex, params.SoilIndex)
		params.VegetationIndex = min(maxVegetationIndex, params.VegetationIndex)
		return params, nil
	}

	return NormalizationParameters{}, fmt.Errorf("%w: unknown normalization policy %q", ErrConfiguration, policy)
}
