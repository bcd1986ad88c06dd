package generator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"turkish-name-generator/internal/vocab"
)

func TestSampleIndex(t *testing.T) {
	probs := []float64{0.2, 0.3, 0.5}
	tests := []struct {
		u    float64
		want sample
	}{
		{u: 0, want: sample{Index: 0, U: 0, CumBefore: 0, CumAfter: 0.2, Prob: 0.2}},
		{u: 0.2, want: sample{Index: 1, U: 0.2, CumBefore: 0.2, CumAfter: 0.5, Prob: 0.3}},
		{u: 0.49, want: sample{Index: 1, U: 0.49, CumBefore: 0.2, CumAfter: 0.5, Prob: 0.3}},
		{u: 0.51, want: sample{Index: 2, U: 0.51, CumBefore: 0.5, CumAfter: 1, Prob: 0.5}},
		{u: 0.999, want: sample{Index: 2, U: 0.999, CumBefore: 0.5, CumAfter: 1, Prob: 0.5}},
	}
	for _, tc := range tests {
		got := sampleIndex(probs, tc.u)
		if diff := cmp.Diff(tc.want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("sampleIndex(%v) (-want +got):\n%s", tc.u, diff)
		}
	}
}

func TestSampleIndexSkipsZeroProbabilities(t *testing.T) {
	probs := []float64{0, 0, 1, 0}
	for _, u := range []float64{0, 0.3, 0.9999} {
		assert.Equal(t, 2, sampleIndex(probs, u).Index)
	}
}

func TestSampleIndexFallsBackToLastNonZero(t *testing.T) {
	// The total falls short of the draw.
	probs := []float64{0.5, 0.4995, 0, 0}
	got := sampleIndex(probs, 0.9999)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, 0.4995, got.Prob)
	assert.InDelta(t, 0.5, got.CumBefore, 1e-12)
}

func TestTopKCandidates(t *testing.T) {
	v := vocab.Build([]string{"ali\n", "veli\n"})
	probs := []float64{0.05, 0.1, 0.3, 0.3, 0.05, 0.2, 0}

	got := topKCandidates(probs, v, 3)
	want := []TraceCandidate{
		{Char: "i", Code: 2, Prob: 0.3},
		{Char: "<END>", Code: 3, Prob: 0.3},
		{Char: "v", Code: 5, Prob: 0.2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("topKCandidates (-want +got):\n%s", diff)
	}

	assert.Len(t, topKCandidates(probs, v, 20), len(probs))
}
