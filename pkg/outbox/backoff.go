package outbox

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy parameterizes the retry delay for a failing head-of-queue
// operation. The delay is keyed by the operation's own attempt count, so
// unrelated enqueues never influence it.
type BackoffPolicy struct {
	InitialMS float64
	MaxMS     float64
	Factor    float64
	Jitter    float64 // randomization factor in [0, 1]
}

// DefaultBackoffPolicy: 1s initial, factor 2, 10% jitter, capped at 60s.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialMS: 1000,
		MaxMS:     60000,
		Factor:    2,
		Jitter:    0.1,
	}
}

// Compute returns the delay before retry number attempt (starting at 1).
func (p BackoffPolicy) Compute(attempt int) time.Duration {
	return p.ComputeWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not need crypto randomness
}

// ComputeWithRand takes the random value explicitly so tests can be
// deterministic. randomValue should be in [0.0, 1.0).
func (p BackoffPolicy) ComputeWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMS * math.Pow(p.Factor, exp)
	jitterAmount := base * p.Jitter * randomValue
	total := math.Min(p.MaxMS, base+jitterAmount)
	return time.Duration(math.Round(total)) * time.Millisecond
}
