package simulated

import (
	mathrand "math/rand"
	"time"
)

// randomSource abstracts the pseudo random generator so tests can script it.
type randomSource interface {
	Float64() float64
}

type pseudoSource struct {
	rng *mathrand.Rand
}

func newPseudoSource(seed *int64) *pseudoSource {
	var src mathrand.Source
	if seed != nil {
		src = mathrand.NewSource(*seed)
	} else {
		src = mathrand.NewSource(time.Now().UnixNano())
	}
	return &pseudoSource{rng: mathrand.New(src)}
}

func (s *pseudoSource) Float64() float64 {
	return s.rng.Float64()
}

// roll reports true with the given probability.
func roll(src randomSource, probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return src.Float64() < probability
}

// step returns a value uniformly drawn from [-amplitude, amplitude].
func step(src randomSource, amplitude float64) float64 {
	if amplitude == 0 {
		return 0
	}
	return (src.Float64()*2 - 1) * amplitude
}
