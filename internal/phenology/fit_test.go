package phenology

import (
	"errors"
	"math"
	"testing"
)

func TestLinearCurveExtrapolates(t *testing.T) {
	c, err := fitCurve(FitLinear, []float64{10, 0, 20, 0}, []float64{1, 0, 1.5, 7}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		x        float64
		expected float64
	}{
		{-10, -1},  // head slope 0.1
		{0, 0},     // first value kept for the repeated day
		{5, 0.5},   // interior
		{15, 1.25}, // interior
		{30, 2},    // tail slope 0.05
	}
	for _, tt := range tests {
		if got := c.Predict(tt.x); math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("Predict(%.0f) = %.4f, want %.4f", tt.x, got, tt.expected)
		}
	}
}

func TestCubicCurveReproducesCubic(t *testing.T) {
	f := func(x float64) float64 { return 0.001*x*x*x - 0.02*x*x + 0.1*x + 1 }

	xs := []float64{0, 2, 5, 7, 10}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = f(x)
	}

	c, err := fitCurve(FitCubic, xs, ys, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range []float64{-3, -1, 0, 1, 3.5, 6, 9, 10, 11, 15} {
		if got := c.Predict(x); math.Abs(got-f(x)) > 1e-6 {
			t.Errorf("Predict(%.1f) = %.6f, want %.6f", x, got, f(x))
		}
	}
}

func TestPolynomialCurveFitsQuadratic(t *testing.T) {
	f := func(x float64) float64 { return 0.5 - 0.01*x + 0.0002*x*x }

	var xs, ys []float64
	for x := 0.0; x <= 200; x += 25 {
		xs = append(xs, x)
		ys = append(ys, f(x))
	}

	c, err := fitCurve(FitPolynomial, xs, ys, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range []float64{-20, 0, 60, 150, 240} {
		if got := c.Predict(x); math.Abs(got-f(x)) > 1e-6 {
			t.Errorf("Predict(%.0f) = %.6f, want %.6f", x, got, f(x))
		}
	}
}

func TestPolynomialDegreeLimitedByPoints(t *testing.T) {
	c, err := fitCurve(FitPolynomial, []float64{0, 10}, []float64{0.2, 0.4}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := c.(*polynomialCurve)
	if len(p.coeffs) != 2 {
		t.Errorf("expected a degree 1 fit, got %d coefficients", len(p.coeffs))
	}
	if got := c.Predict(20); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("Predict(20) = %.4f, want 0.6", got)
	}
}

func TestFitCurveInsufficientData(t *testing.T) {
	tests := []struct {
		name string
		kind FitKind
		xs   []float64
	}{
		{"linear empty", FitLinear, nil},
		{"linear single", FitLinear, []float64{4}},
		{"linear repeated day", FitLinear, []float64{4, 4, 4}},
		{"cubic three", FitCubic, []float64{1, 2, 3}},
		{"polynomial single", FitPolynomial, []float64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ys := make([]float64, len(tt.xs))
			_, err := fitCurve(tt.kind, tt.xs, ys, 3)
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("expected ErrInsufficientData, got %v", err)
			}
		})
	}
}

func TestLinearCurveRejectsSinglePoint(t *testing.T) {
	if _, err := newLinearCurve([]float64{3}, []float64{0.4}); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}

	c, err := newLinearCurve([]float64{0, 10}, []float64{0.2, 0.4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Predict(5); math.Abs(got-0.3) > 1e-12 {
		t.Errorf("Predict(5) = %.4f, want 0.3", got)
	}
}

func TestParseFitKind(t *testing.T) {
	if k, err := ParseFitKind("Cubic"); err != nil || k != FitCubic {
		t.Errorf("ParseFitKind(Cubic) = %q, %v", k, err)
	}
	if _, err := ParseFitKind("spline"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}
