package generator

import (
	"fmt"
	"sort"

	"turkish-name-generator/internal/vocab"
)

// traceTopK is the number of candidates recorded per trace step.
const traceTopK = 5

// TraceCandidate is one candidate code shown in a generation trace.
type TraceCandidate struct {
	Char string  `json:"char"`
	Code int     `json:"code"`
	Prob float64 `json:"prob"`
}

// TraceStep explains one sampled generation position.
type TraceStep struct {
	Attempt    int              `json:"attempt"`
	Position   int              `json:"position"`
	Context    string           `json:"context"`
	TopK       []TraceCandidate `json:"top_k"`
	RandomU    float64          `json:"random_u"`
	ChosenChar string           `json:"chosen_char"`
	ChosenCode int              `json:"chosen_code"`
	ChosenProb float64          `json:"chosen_prob"`
	ChosenRank int              `json:"chosen_rank"`
	CumBefore  float64          `json:"cum_before"`
	CumAfter   float64          `json:"cum_after"`
	Reason     string           `json:"reason"`
}

// topKCandidates selects the k highest-probability codes. Equal
// probabilities keep vocabulary order.
func topKCandidates(probs []float64, v *vocab.Vocabulary, k int) []TraceCandidate {
	indices := make([]int, len(probs))
	for i := range probs {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return probs[indices[i]] > probs[indices[j]]
	})
	if len(indices) > k {
		indices = indices[:k]
	}

	out := make([]TraceCandidate, 0, len(indices))
	for _, idx := range indices {
		out = append(out, TraceCandidate{
			Char: v.Label(idx),
			Code: idx,
			Prob: probs[idx],
		})
	}
	return out
}

func newTraceStep(attempt, pos int, context string, probs []float64, s sample, v *vocab.Vocabulary) TraceStep {
	topK := topKCandidates(probs, v, traceTopK)

	// Anything outside the top k is reported with the worst possible rank.
	chosenRank := len(probs)
	for rank, cand := range topK {
		if cand.Code == s.Index {
			chosenRank = rank + 1
			break
		}
	}

	chosen := v.Label(s.Index)
	reason := fmt.Sprintf(
		"Chosen '%s' because draw %.4f fell inside cumulative interval [%.4f, %.4f) in vocabulary code order.",
		chosen, s.U, s.CumBefore, s.CumAfter,
	)
	if len(topK) > 0 && topK[0].Code != s.Index {
		reason += fmt.Sprintf(
			" Highest-probability option was '%s' at %.4f.",
			topK[0].Char, topK[0].Prob,
		)
	}

	return TraceStep{
		Attempt:    attempt,
		Position:   pos,
		Context:    context,
		TopK:       topK,
		RandomU:    s.U,
		ChosenChar: chosen,
		ChosenCode: s.Index,
		ChosenProb: s.Prob,
		ChosenRank: chosenRank,
		CumBefore:  s.CumBefore,
		CumAfter:   s.CumAfter,
		Reason:     reason,
	}
}
