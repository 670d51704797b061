// Package captcha answers verification puzzles from their raw images.
// The two supported kinds mirror what the site serves: a slide puzzle
// (drag a piece horizontally into a cutout) and a whirl puzzle (rotate
// an inner disc to line up with an outer ring, driven by the same
// horizontal slider).
package captcha

import (
	"context"

	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/config"
)

// Kind identifies the puzzle variant.
type Kind string

const (
	KindSlide Kind = "slide"
	KindWhirl Kind = "whirl"
)

// Solver computes the slider answer for a puzzle. Both methods return a
// fraction in [0,1] of the drag bar's effective width; the caller scales
// it to pixels against the live DOM.
type Solver interface {
	// SolveSlide takes the full puzzle image and the loose piece image.
	SolveSlide(ctx context.Context, puzzle, piece []byte) (float64, error)
	// SolveWhirl takes the outer ring and inner disc images.
	SolveWhirl(ctx context.Context, outer, inner []byte) (float64, error)
}

// New builds the solver selected by configuration. A remote endpoint
// wins when configured; otherwise the correlation solver runs locally.
func New(cfg config.CaptchaConfig, logger *zap.Logger) Solver {
	if cfg.SolverURL != "" {
		return NewRemoteSolver(cfg.SolverURL, cfg.SolverKey, logger)
	}
	return NewCorrelationSolver(logger)
}
