package phenology

import "math"

// seasonEnd marks a phase that runs through the last season day
const seasonEnd = -1

// phase is one development interval of a growth template. Over days [start, end)
// the template ramps linearly from one index value to another.
type phase struct {
	name  string
	start int
	end   int
	from  float64
	to    float64

	// weight is the share of the template target in the blended value
	weight float64

	// decay, when set, replaces weight with 1 - exp(-(end-day)/decay)
	decay float64

	// jitter is the amplitude of uniform noise added to the target
	jitter float64
}

func (ph phase) progress(day, length int) float64 {
	end := ph.end
	if end == seasonEnd {
		end = length
	}
	span := end - ph.start
	if span <= 0 {
		return 0
	}
	return float64(day-ph.start) / float64(span)
}

func (ph phase) target(progress float64) float64 {
	return ph.from + (ph.to-ph.from)*progress
}

func (ph phase) blendWeight(day int) float64 {
	if ph.decay > 0 {
		return 1 - math.Exp(-float64(ph.end-day)/ph.decay)
	}
	return ph.weight
}

// phaseAt returns the last phase starting on or before day. Phases must be
// ordered by start.
func phaseAt(phases []phase, day int) phase {
	current := phases[0]
	for _, ph := range phases[1:] {
		if ph.start > day {
			break
		}
		current = ph
	}
	return current
}
