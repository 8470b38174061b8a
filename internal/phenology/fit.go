package phenology

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// FitKind names a numeric curve fit used for reconstruction and for bootstrap trials
type FitKind string

const (
	FitLinear     FitKind = "linear"
	FitCubic      FitKind = "cubic"
	FitPolynomial FitKind = "polynomial"
)

// DefaultPolynomialDegree is the highest polynomial degree used for reconstruction
const DefaultPolynomialDegree = 3

// ParseFitKind resolves a fit name
func ParseFitKind(name string) (FitKind, error) {
	switch k := FitKind(strings.ToLower(strings.TrimSpace(name))); k {
	case FitLinear, FitCubic, FitPolynomial:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown fit %q", ErrConfiguration, name)
}

// minPoints returns the number of distinct observation days a fit needs
func (k FitKind) minPoints() int {
	if k == FitCubic {
		return 4
	}
	return 2
}

// Curve predicts an index value at a (possibly fractional) day offset
type Curve interface {
	Predict(x float64) float64
}

// fitCurve fits a curve of the given kind. Interpolating fits keep the first value
// seen for a repeated day; the polynomial fit uses every point in a least squares sense.
func fitCurve(kind FitKind, xs, ys []float64, maxDegree int) (Curve, error) {
	ux, uy := uniquePoints(xs, ys)
	if len(ux) < kind.minPoints() {
		return nil, fmt.Errorf("%w: %s fit needs at least %d distinct observation days, got %d",
			ErrInsufficientData, kind, kind.minPoints(), len(ux))
	}

	switch kind {
	case FitLinear:
		return newLinearCurve(ux, uy)
	case FitCubic:
		return newCubicCurve(ux, uy)
	case FitPolynomial:
		degree := min(maxDegree, len(ux)-1)
		if degree < 1 {
			degree = 1
		}
		return newPolynomialCurve(xs, ys, degree)
	}
	return nil, fmt.Errorf("%w: unknown fit %q", ErrConfiguration, kind)
}

// uniquePoints returns the points sorted by x, keeping the first y seen for each x
func uniquePoints(xs, ys []float64) ([]float64, []float64) {
	seen := make(map[float64]float64, len(xs))
	order := make([]float64, 0, len(xs))
	for i, x := range xs {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = ys[i]
		order = append(order, x)
	}
	sort.Float64s(order)

	uy := make([]float64, len(order))
	for i, x := range order {
		uy[i] = seen[x]
	}
	return order, uy
}

// linearCurve is a piecewise linear interpolant that extends its end segments
// beyond the observed range
type linearCurve struct {
	pl        interp.PiecewiseLinear
	x0, y0    float64
	xn, yn    float64
	headSlope float64
	tailSlope float64
}

func newLinearCurve(xs, ys []float64) (*linearCurve, error) {
	if len(xs) < 2 {
		return nil, fmt.Errorf("%w: linear fit needs 2 distinct days, got %d", ErrInsufficientData, len(xs))
	}
	c := &linearCurve{}
	if err := c.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("linear fit: %w", err)
	}

	n := len(xs)
	c.x0, c.y0 = xs[0], ys[0]
	c.xn, c.yn = xs[n-1], ys[n-1]
	c.headSlope = (ys[1] - ys[0]) / (xs[1] - xs[0])
	c.tailSlope = (ys[n-1] - ys[n-2]) / (xs[n-1] - xs[n-2])
	return c, nil
}

func (c *linearCurve) Predict(x float64) float64 {
	switch {
	case x < c.x0:
		return c.y0 + c.headSlope*(x-c.x0)
	case x > c.xn:
		return c.yn + c.tailSlope*(x-c.xn)
	}
	return c.pl.Predict(x)
}

// cubicCurve is a not-a-knot cubic spline. Outside the observed range it continues
// the cubic polynomial of the nearest end segment.
type cubicCurve struct {
	spline     interp.NotAKnotCubic
	head, tail hermiteSegment
}

// hermiteSegment is a cubic described by values and derivatives at both ends
type hermiteSegment struct {
	x0, x1 float64
	y0, y1 float64
	d0, d1 float64
}

func (h hermiteSegment) eval(x float64) float64 {
	dx := h.x1 - h.x0
	t := (x - h.x0) / dx
	t2 := t * t
	t3 := t2 * t
	return (2*t3-3*t2+1)*h.y0 +
		(t3-2*t2+t)*dx*h.d0 +
		(-2*t3+3*t2)*h.y1 +
		(t3-t2)*dx*h.d1
}

func newCubicCurve(xs, ys []float64) (*cubicCurve, error) {
	c := &cubicCurve{}
	if err := c.spline.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("cubic fit: %w", err)
	}

	n := len(xs)
	segment := func(a, b float64) hermiteSegment {
		return hermiteSegment{
			x0: a, x1: b,
			y0: c.spline.Predict(a), y1: c.spline.Predict(b),
			d0: c.spline.PredictDerivative(a), d1: c.spline.PredictDerivative(b),
		}
	}
	c.head = segment(xs[0], xs[1])
	c.tail = segment(xs[n-2], xs[n-1])
	return c, nil
}

func (c *cubicCurve) Predict(x float64) float64 {
	switch {
	case x < c.head.x0:
		return c.head.eval(x)
	case x > c.tail.x1:
		return c.tail.eval(x)
	}
	return c.spline.Predict(x)
}

// polynomialCurve is a least squares polynomial. Coefficients are in ascending power order.
type polynomialCurve struct {
	coeffs []float64
}

func newPolynomialCurve(xs, ys []float64, degree int) (*polynomialCurve, error) {
	n := len(xs)

	// Vandermonde matrix solved by QR decomposition
	X := mat.NewDense(n, degree+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= degree; j++ {
			X.Set(i, j, math.Pow(xs[i], float64(j)))
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), ys...))

	var qr mat.QR
	qr.Factorize(X)

	coeffs := mat.NewVecDense(degree+1, nil)
	if err := qr.SolveVecTo(coeffs, false, y); err != nil {
		return nil, fmt.Errorf("polynomial fit of degree %d: %w", degree, err)
	}

	c := &polynomialCurve{coeffs: make([]float64, degree+1)}
	for i := range c.coeffs {
		c.coeffs[i] = coeffs.AtVec(i)
	}
	return c, nil
}

func (c *polynomialCurve) Predict(x float64) float64 {
	// Horner's method
	result := 0.0
	for i := len(c.coeffs) - 1; i >= 0; i-- {
		result = result*x + c.coeffs[i]
	}
	return result
}

// evaluate samples a curve at every season day and clips to [0, 1]
func evaluate(c Curve, days int) []float64 {
	values := make([]float64, days)
	for d := range values {
		values[d] = clip01(c.Predict(float64(d)))
	}
	return values
}
