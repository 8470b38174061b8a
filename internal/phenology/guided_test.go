package phenology

import (
	"math"
	"testing"
)

func TestGuidedPhaseTable(t *testing.T) {
	for i := 1; i < len(guidedPhases); i++ {
		prev, cur := guidedPhases[i-1], guidedPhases[i]
		if prev.end != cur.start {
			t.Errorf("phase %q ends at %d but %q starts at %d", prev.name, prev.end, cur.name, cur.start)
		}
	}
	if last := guidedPhases[len(guidedPhases)-1]; last.end != seasonEnd {
		t.Errorf("last phase %q must close at season end", last.name)
	}

	tests := []struct {
		day   int
		phase string
	}{
		{0, "pre-emergence"},
		{9, "pre-emergence"},
		{10, "emergence"},
		{119, "tillering"},
		{120, "stem elongation"},
		{244, "flowering"},
		{269, "grain filling"},
		{270, "maturity"},
		{400, "maturity"},
	}
	for _, tt := range tests {
		if got := phaseAt(guidedPhases, tt.day).name; got != tt.phase {
			t.Errorf("day %d: expected phase %q, got %q", tt.day, tt.phase, got)
		}
	}
}

func TestGuidedTemplate(t *testing.T) {
	s := wheatSeason(t)
	obs := observe(s, map[int]float64{100: 0.6, 200: 0.9})
	g := NewGuidedReconstructor(nil)
	values := g.template(obs, s)

	baseline := func(d float64) float64 {
		return clip01(0.05 + (0.9-0.05)/(1+math.Exp(-0.02*(d-150))))
	}

	tests := []struct {
		name     string
		day      int
		expected float64
	}{
		{
			name:     "pre-emergence transition",
			day:      0,
			expected: math.Exp(-2)*baseline(0) + (1-math.Exp(-2))*0.05,
		},
		{
			name:     "tillering midpoint",
			day:      82,
			expected: 0.5*baseline(82) + 0.5*(0.30+0.35*37.0/75.0),
		},
		{
			name:     "flowering plateau",
			day:      235,
			expected: 0.2*baseline(235) + 0.8*0.95,
		},
		{
			name:     "harvest",
			day:      286,
			expected: 0.3*baseline(286) + 0.7*0.15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := values[tt.day]; math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("expected %.6f, got %.6f", tt.expected, got)
			}
		})
	}
}

func TestGuidedObservationPull(t *testing.T) {
	s := wheatSeason(t)
	obs := observe(s, map[int]float64{121: 0.85})

	values := NewGuidedReconstructor(nil).template(obs, s)
	pre := append([]float64(nil), values...)
	pullTowardObservations(values, obs, s)

	if expected := 0.9*0.85 + 0.1*pre[121]; math.Abs(values[121]-expected) > 1e-12 {
		t.Errorf("observed day: expected %.6f, got %.6f", expected, values[121])
	}

	for _, d := range []int{72, 110, 122, 170} {
		influence := 0.5 * math.Exp(-math.Abs(float64(d-121))/15)
		expected := (1-influence)*pre[d] + influence*0.85
		if math.Abs(values[d]-expected) > 1e-12 {
			t.Errorf("day %d: expected %.6f, got %.6f", d, expected, values[d])
		}
	}

	for _, d := range []int{0, 71, 171, 286} {
		if values[d] != pre[d] {
			t.Errorf("day %d outside influence radius changed from %.6f to %.6f", d, pre[d], values[d])
		}
	}
}

func TestGuidedPullIgnoresOutOfSeasonObservations(t *testing.T) {
	s := wheatSeason(t)
	obs := observe(s, map[int]float64{-3: 0.9, 300: 0.9})

	values := NewGuidedReconstructor(nil).template(obs, s)
	pre := append([]float64(nil), values...)
	pullTowardObservations(values, obs, s)

	for d := range values {
		if values[d] != pre[d] {
			t.Fatalf("day %d changed by an out-of-season observation", d)
		}
	}
}

func TestGuidedReconstructIsDeterministic(t *testing.T) {
	s := wheatSeason(t)
	obs := wheatObservations(s)

	a, err := NewGuidedReconstructor(nil).Reconstruct(obs, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := NewGuidedReconstructor(nil).Reconstruct(obs, s)
	for d := range a {
		if a[d] != b[d] {
			t.Fatalf("day %d differs between runs: %f vs %f", d, a[d], b[d])
		}
	}
}
