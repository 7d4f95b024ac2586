// Package backoff provides exponential backoff with jitter for reconnect pacing.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added on top.
	Jitter float64
}

// Reconnect returns the policy used for transport reconnection. The 1s floor
// keeps a dead server from being hammered tighter than once per second.
func Reconnect() Policy {
	return Policy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.2,
	}
}

// Delay computes the backoff for a given attempt. Attempts start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not need crypto randomness
}

// delayWithRand computes the backoff using a caller-supplied random value in
// [0.0, 1.0), which makes the result deterministic for tests.
func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jittered := base + base*p.Jitter*random
	capped := math.Min(float64(p.Max), jittered)
	return time.Duration(capped)
}
