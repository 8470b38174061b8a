package phenology

// CoverFraction converts an index value to fractional vegetation cover in [0, 1]
func (p NormalizationParameters) CoverFraction(index float64) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return p.coverFraction(index), nil
}

func (p NormalizationParameters) coverFraction(index float64) float64 {
	return clip01((index - p.SoilIndex) / (p.VegetationIndex - p.SoilIndex))
}

// CoverPercentage scales a cover fraction to ground cover percent
func CoverPercentage(fraction float64) float64 {
	return fraction * 100
}

// Cover converts an index and its bounds to cover fractions and percentages.
// Bounds are normalized independently, so Lower <= Fraction <= Upper holds
// whenever it holds for the index.
func (p NormalizationParameters) Cover(index, lower, upper float64) (Cover, error) {
	if err := p.Validate(); err != nil {
		return Cover{}, err
	}
	c := Cover{
		Fraction: p.coverFraction(index),
		Lower:    p.coverFraction(lower),
		Upper:    p.coverFraction(upper),
	}
	c.Percentage = CoverPercentage(c.Fraction)
	c.PercentageLower = CoverPercentage(c.Lower)
	c.PercentageUpper = CoverPercentage(c.Upper)
	return c, nil
}
