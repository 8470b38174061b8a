package phenology

import "errors"

var (
	// ErrConfiguration reports an unknown policy, algorithm or fit name, or an invalid season
	ErrConfiguration = errors.New("configuration error")

	// ErrInsufficientData reports too few observations for a numeric fit
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateParameters reports a vegetation reference index that does not exceed
	// the soil reference index, which leaves cover fraction undefined
	ErrDegenerateParameters = errors.New("degenerate normalization parameters")
)
