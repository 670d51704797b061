package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"go.uber.org/zap"
)

// CorrelationSolver answers puzzles locally with image correlation: the
// slide variant by matching the piece's edge map against the puzzle's,
// the whirl variant by correlating the ring of pixels where the inner
// disc meets the outer image across candidate rotations.
type CorrelationSolver struct {
	logger *zap.Logger
}

// NewCorrelationSolver returns a solver with no external dependencies.
func NewCorrelationSolver(logger *zap.Logger) *CorrelationSolver {
	return &CorrelationSolver{logger: logger.Named("captcha_correlation")}
}

// SolveSlide finds the horizontal offset where the piece's edges line up
// with the cutout in the puzzle image, as a fraction of the searchable
// width.
func (s *CorrelationSolver) SolveSlide(ctx context.Context, puzzle, piece []byte) (float64, error) {
	puzzleImg, err := decodeGray(puzzle)
	if err != nil {
		return 0, fmt.Errorf("decoding puzzle image: %w", err)
	}
	pieceImg, err := decodeGray(piece)
	if err != nil {
		return 0, fmt.Errorf("decoding piece image: %w", err)
	}

	puzzleEdges := sobel(gaussianBlur(puzzleImg))
	pieceEdges := sobel(gaussianBlur(pieceImg))

	bestX, score, err := matchTemplate(ctx, puzzleEdges, pieceEdges)
	if err != nil {
		return 0, err
	}

	searchW := puzzleEdges.w - pieceEdges.w
	if searchW <= 0 {
		return 0, fmt.Errorf("piece (%dpx) is not narrower than puzzle (%dpx)", pieceEdges.w, puzzleEdges.w)
	}
	frac := float64(bestX) / float64(searchW)

	s.logger.Debug("Slide puzzle matched.",
		zap.Int("best_x", bestX),
		zap.Float64("score", score),
		zap.Float64("fraction", frac))
	return clamp01(frac), nil
}

// SolveWhirl finds the rotation that best joins the inner disc to the
// outer ring, as a fraction of a full turn. The comparison samples the
// two circles of pixels immediately either side of the disc boundary.
func (s *CorrelationSolver) SolveWhirl(ctx context.Context, outer, inner []byte) (float64, error) {
	outerImg, err := decodeGray(outer)
	if err != nil {
		return 0, fmt.Errorf("decoding outer image: %w", err)
	}
	innerImg, err := decodeGray(inner)
	if err != nil {
		return 0, fmt.Errorf("decoding inner image: %w", err)
	}

	const resolution = 300

	// Ring just outside the disc on the outer image, ring just inside the
	// disc's own rim.
	rOuter := float64(innerImg.h)/2 + 1
	rInner := float64(innerImg.h)/2 - 1

	outerRing := sampleRing(outerImg, rOuter, resolution)
	innerRing := sampleRing(innerImg, rInner, resolution)

	bestAngle, bestMatch := 0, math.Inf(-1)
	for angle := 0; angle < resolution; angle++ {
		if angle%64 == 0 && ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var match float64
		for i := 0; i < resolution; i++ {
			match += outerRing[i] * innerRing[(i+angle)%resolution]
		}
		if match > bestMatch {
			bestMatch = match
			bestAngle = angle
		}
	}

	frac := float64(resolution-bestAngle) / float64(resolution)
	s.logger.Debug("Whirl puzzle matched.",
		zap.Int("best_angle_step", bestAngle),
		zap.Float64("fraction", frac))
	return clamp01(frac), nil
}

// grayImage is a dense float64 luminance plane.
type grayImage struct {
	w, h int
	pix  []float64
}

func (g *grayImage) at(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.w {
		x = g.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.h {
		y = g.h - 1
	}
	return g.pix[y*g.w+x]
}

func decodeGray(data []byte) (*grayImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	g := &grayImage{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma weights.
			g.pix[y*g.w+x] = 0.299*float64(r>>8) + 0.587*float64(gr>>8) + 0.114*float64(bl>>8)
		}
	}
	return g, nil
}

// gaussianBlur applies a 3x3 Gaussian kernel.
func gaussianBlur(src *grayImage) *grayImage {
	kernel := [3][3]float64{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}
	dst := &grayImage{w: src.w, h: src.h, pix: make([]float64, len(src.pix))}
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			var sum float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += src.at(x+kx, y+ky) * kernel[ky+1][kx+1]
				}
			}
			dst.pix[y*src.w+x] = sum / 16.0
		}
	}
	return dst
}

// sobel computes the combined gradient magnitude (|Gx|/2 + |Gy|/2).
func sobel(src *grayImage) *grayImage {
	dst := &grayImage{w: src.w, h: src.h, pix: make([]float64, len(src.pix))}
	for y := 0; y < src.h; y++ {
		for x := 0; x < src.w; x++ {
			gx := -src.at(x-1, y-1) - 2*src.at(x-1, y) - src.at(x-1, y+1) +
				src.at(x+1, y-1) + 2*src.at(x+1, y) + src.at(x+1, y+1)
			gy := -src.at(x-1, y-1) - 2*src.at(x, y-1) - src.at(x+1, y-1) +
				src.at(x-1, y+1) + 2*src.at(x, y+1) + src.at(x+1, y+1)
			dst.pix[y*src.w+x] = math.Abs(gx)/2 + math.Abs(gy)/2
		}
	}
	return dst
}

// matchTemplate slides tmpl across img computing zero-mean normalized
// cross-correlation, and returns the x of the strongest match.
func matchTemplate(ctx context.Context, img, tmpl *grayImage) (int, float64, error) {
	if tmpl.w > img.w || tmpl.h > img.h {
		return 0, 0, fmt.Errorf("template %dx%d larger than image %dx%d", tmpl.w, tmpl.h, img.w, img.h)
	}

	tmplMean := mean(tmpl.pix)
	tmplZero := make([]float64, len(tmpl.pix))
	var tmplNorm float64
	for i, v := range tmpl.pix {
		tmplZero[i] = v - tmplMean
		tmplNorm += tmplZero[i] * tmplZero[i]
	}
	tmplNorm = math.Sqrt(tmplNorm)
	if tmplNorm < 1e-9 {
		return 0, 0, fmt.Errorf("template has no variance")
	}

	bestX, bestScore := 0, math.Inf(-1)
	for oy := 0; oy <= img.h-tmpl.h; oy++ {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		for ox := 0; ox <= img.w-tmpl.w; ox++ {
			var winSum float64
			for ty := 0; ty < tmpl.h; ty++ {
				row := (oy + ty) * img.w
				for tx := 0; tx < tmpl.w; tx++ {
					winSum += img.pix[row+ox+tx]
				}
			}
			winMean := winSum / float64(len(tmpl.pix))

			var num, winNorm float64
			for ty := 0; ty < tmpl.h; ty++ {
				row := (oy + ty) * img.w
				trow := ty * tmpl.w
				for tx := 0; tx < tmpl.w; tx++ {
					wv := img.pix[row+ox+tx] - winMean
					num += wv * tmplZero[trow+tx]
					winNorm += wv * wv
				}
			}
			winNorm = math.Sqrt(winNorm)
			if winNorm < 1e-9 {
				continue
			}
			score := num / (winNorm * tmplNorm)
			if score > bestScore {
				bestScore = score
				bestX = ox
			}
		}
	}
	return bestX, bestScore, nil
}

// sampleRing samples n luminance values on a circle of radius r around
// the image center.
func sampleRing(img *grayImage, r float64, n int) []float64 {
	out := make([]float64, n)
	cx := float64(img.w) / 2
	cy := float64(img.h) / 2
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		x := int(cx + r*math.Cos(theta))
		y := int(cy + r*math.Sin(theta))
		out[i] = img.at(x, y)
	}
	return out
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
