package phenology

import "math/rand/v2"

const physiologicalObservationWeight = 0.7

// physiologicalPhases is an index template for winter wheat development
var physiologicalPhases = []phase{
	{name: "pre-emergence", start: 0, end: 10, from: 0.05, to: 0.05, jitter: 0.02},
	{name: "emergence", start: 10, end: 45, from: 0.05, to: 0.20},
	{name: "tillering", start: 45, end: 120, from: 0.20, to: 0.45},
	{name: "stem elongation", start: 120, end: 200, from: 0.45, to: 0.70},
	{name: "booting", start: 200, end: 220, from: 0.70, to: 0.85},
	{name: "heading", start: 220, end: 230, from: 0.85, to: 0.90},
	{name: "flowering", start: 230, end: 245, from: 0.90, to: 0.90, jitter: 0.02},
	{name: "grain filling", start: 245, end: 270, from: 0.90, to: 0.60},
	{name: "maturity", start: 270, end: seasonEnd, from: 0.60, to: 0.10},
}

// PhysiologicalReconstructor evaluates a development template and blends
// observed days toward their observations
type PhysiologicalReconstructor struct {
	noise *rand.Rand
}

// NewPhysiologicalReconstructor creates a PhysiologicalReconstructor. With a nil
// noise source the template is deterministic.
func NewPhysiologicalReconstructor(noise *rand.Rand) *PhysiologicalReconstructor {
	return &PhysiologicalReconstructor{noise: noise}
}

// Reconstruct evaluates the template and blends in every in-season observation
func (p *PhysiologicalReconstructor) Reconstruct(obs []Observation, season Season) ([]float64, error) {
	length := season.Length()
	values := make([]float64, season.Days())
	for d := range values {
		ph := phaseAt(physiologicalPhases, d)
		v := ph.target(ph.progress(d, length))
		if ph.jitter > 0 && p.noise != nil {
			v += p.noise.Float64() * ph.jitter
		}
		values[d] = clip01(v)
	}
	blendObservations(values, obs, season, physiologicalObservationWeight)
	return values, nil
}
