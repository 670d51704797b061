package captcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RemoteSolver delegates puzzle answers to a hosted solver API. The wire
// protocol follows the common commercial shape: base64 images in, an
// errorId plus a normalized answer out.
type RemoteSolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteSolver configures a solver against baseURL, authenticating
// with key as the licenseKey query parameter.
func NewRemoteSolver(baseURL, key string, logger *zap.Logger) *RemoteSolver {
	return &RemoteSolver{
		baseURL: baseURL,
		apiKey:  key,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("captcha_remote"),
	}
}

type slideRequest struct {
	PuzzleImageB64 string `json:"puzzleImageB64"`
	PieceImageB64  string `json:"pieceImageB64"`
}

type slideResponse struct {
	ErrorID          int     `json:"errorId"`
	Message          string  `json:"message"`
	SlideXProportion float64 `json:"slideXProportion"`
}

type whirlRequest struct {
	OuterImageB64 string `json:"outerImageB64"`
	InnerImageB64 string `json:"innerImageB64"`
}

type whirlResponse struct {
	ErrorID    int     `json:"errorId"`
	Message    string  `json:"message"`
	Proportion float64 `json:"angleProportion"`
}

// SolveSlide posts the puzzle and piece images to the /puzzle endpoint.
func (r *RemoteSolver) SolveSlide(ctx context.Context, puzzle, piece []byte) (float64, error) {
	req := slideRequest{
		PuzzleImageB64: base64.StdEncoding.EncodeToString(puzzle),
		PieceImageB64:  base64.StdEncoding.EncodeToString(piece),
	}
	var resp slideResponse
	if err := r.post(ctx, "/puzzle", req, &resp); err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		return 0, fmt.Errorf("solver rejected slide puzzle: %s (errorId %d)", resp.Message, resp.ErrorID)
	}
	return clamp01(resp.SlideXProportion), nil
}

// SolveWhirl posts the outer and inner images to the /rotate endpoint.
func (r *RemoteSolver) SolveWhirl(ctx context.Context, outer, inner []byte) (float64, error) {
	req := whirlRequest{
		OuterImageB64: base64.StdEncoding.EncodeToString(outer),
		InnerImageB64: base64.StdEncoding.EncodeToString(inner),
	}
	var resp whirlResponse
	if err := r.post(ctx, "/rotate", req, &resp); err != nil {
		return 0, err
	}
	if resp.ErrorID != 0 {
		return 0, fmt.Errorf("solver rejected whirl puzzle: %s (errorId %d)", resp.Message, resp.ErrorID)
	}
	return clamp01(resp.Proportion), nil
}

func (r *RemoteSolver) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding solver request: %w", err)
	}

	url := fmt.Sprintf("%s%s?licenseKey=%s", r.baseURL, path, r.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("solver request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading solver response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solver returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	r.logger.Debug("Solver responded.",
		zap.String("path", path),
		zap.Duration("elapsed", time.Since(start)))

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding solver response: %w", err)
	}
	return nil
}
