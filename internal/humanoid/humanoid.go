// Package humanoid synthesizes human-plausible pointer and scroll input
// through the Chrome DevTools Protocol. Trajectories follow eased Bezier
// curves with Perlin drift and Gaussian jitter, and timing follows Fitts's
// Law, so that injected input is statistically closer to a person at a
// desk than to a script.
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// Fitts's Law coefficients (milliseconds). Tuned against recordings of
// casual trackpad use rather than lab benchmarks.
const (
	fittsA = 120.0
	fittsB = 105.0
)

// perlinAmplitude bounds the low-frequency drift applied to every
// trajectory sample, in pixels.
const perlinAmplitude = 2.5

// Humanoid manages the state and execution of human-like input on a
// single browser tab. It is safe for concurrent use, though callers
// normally serialize interactions anyway.
type Humanoid struct {
	logger *zap.Logger

	mu         sync.Mutex
	currentPos Vector2D
	noiseTime  float64

	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

// New creates a Humanoid seeded from the current time. The starting
// cursor position is randomized inside the typical viewport so the first
// movement does not originate from (0,0).
func New(logger *zap.Logger) *Humanoid {
	seed := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(seed))

	// Standard Perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Humanoid{
		logger: logger,
		rng:    rng,
		currentPos: Vector2D{
			X: 200 + rng.Float64()*400,
			Y: 150 + rng.Float64()*300,
		},
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// Position returns the current synthetic cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// setPosition records the cursor position after a dispatched move.
func (h *Humanoid) setPosition(p Vector2D) {
	h.mu.Lock()
	h.currentPos = p
	h.mu.Unlock()
}

// pause sleeps for base +/- spread milliseconds, modelling reaction time.
func (h *Humanoid) pause(base, spread float64) time.Duration {
	h.mu.Lock()
	r := h.rng.Float64()
	h.mu.Unlock()
	ms := base + (r*2-1)*spread
	if ms < 10 {
		ms = 10
	}
	return time.Duration(ms) * time.Millisecond
}
