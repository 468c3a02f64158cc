// Package consensus implements the conservative consensus scoring function.
//
// A raw vote mean is unstable at small sample sizes: three agrees and zero
// disagrees would read as full certainty. Score subtracts the standard error
// of the mean, yielding a lower bound that converges to the raw mean only as
// the sample grows.
package consensus

import (
	"math"

	"github.com/hyperjump/naosu/pkg/utils"
)

// Score returns the confidence-adjusted agreement in [-1, 1] for the given
// vote counts. Zero votes score zero. Pure; safe for concurrent use.
func Score(agree, disagree int) float64 {
	n := agree + disagree
	if n <= 0 {
		return 0
	}
	mean := float64(agree-disagree) / float64(n)
	// Each vote is exactly ±1, so the per-vote second moment is 1. The
	// central variance 1-mean² collapses to zero on unanimous votes, which
	// would erase the penalty exactly where it matters most; the second
	// moment keeps an uncertainty floor of 1/sqrt(n) alive, so a unanimous
	// score only approaches 1 as the sample grows.
	sem := math.Sqrt(1 / float64(n))
	return utils.Clamp(mean-sem, -1, 1)
}

// Gate holds the thresholds a suggestion must clear before it becomes
// eligible for the replacement queue.
type Gate struct {
	// ReviewThreshold is the minimum consensus score, in [0, 1].
	ReviewThreshold float64
	// MinEvaluations is the minimum number of votes.
	MinEvaluations int
}

// Eligible reports whether a score over n evaluations clears the gate.
func (g Gate) Eligible(score float64, n int) bool {
	return score >= g.ReviewThreshold && n >= g.MinEvaluations
}
