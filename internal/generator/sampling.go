package generator

// sample is the outcome of one inverse transform draw.
type sample struct {
	Index     int
	U         float64
	CumBefore float64
	CumAfter  float64
	Prob      float64
}

// sampleIndex picks one code from probs for the uniform draw u in [0,1).
//
// Probabilities are walked cumulatively in code order until the interval
// containing u is found. They are used as given: no temperature and no
// renormalisation. When rounding leaves the total below u, the last code with
// non-zero probability is returned.
func sampleIndex(probs []float64, u float64) sample {
	cumulative := 0.0
	fallback := sample{U: u}

	for idx, p := range probs {
		prev := cumulative
		cumulative += p
		if u < cumulative {
			return sample{Index: idx, U: u, CumBefore: prev, CumAfter: cumulative, Prob: p}
		}
		if p > 0 {
			fallback = sample{Index: idx, U: u, CumBefore: prev, CumAfter: cumulative, Prob: p}
		}
	}
	return fallback
}
