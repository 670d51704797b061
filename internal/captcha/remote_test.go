package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRemoteSolver_SolveSlide(t *testing.T) {
	puzzle := []byte("puzzle-bytes")
	piece := []byte("piece-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/puzzle", r.URL.Path)
		assert.Equal(t, "key-123", r.URL.Query().Get("licenseKey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req slideRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, base64.StdEncoding.EncodeToString(puzzle), req.PuzzleImageB64)
		assert.Equal(t, base64.StdEncoding.EncodeToString(piece), req.PieceImageB64)

		fmt.Fprint(w, `{"errorId":0,"slideXProportion":0.42}`)
	}))
	defer srv.Close()

	solver := NewRemoteSolver(srv.URL, "key-123", zap.NewNop())
	frac, err := solver.SolveSlide(context.Background(), puzzle, piece)
	require.NoError(t, err)
	assert.InDelta(t, 0.42, frac, 1e-9)
}

func TestRemoteSolver_SolveWhirl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rotate", r.URL.Path)
		fmt.Fprint(w, `{"errorId":0,"angleProportion":0.77}`)
	}))
	defer srv.Close()

	solver := NewRemoteSolver(srv.URL, "k", zap.NewNop())
	frac, err := solver.SolveWhirl(context.Background(), []byte("outer"), []byte("inner"))
	require.NoError(t, err)
	assert.InDelta(t, 0.77, frac, 1e-9)
}

func TestRemoteSolver_ErrorIDRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errorId":2,"message":"insufficient credit"}`)
	}))
	defer srv.Close()

	solver := NewRemoteSolver(srv.URL, "k", zap.NewNop())
	_, err := solver.SolveSlide(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient credit")
}

func TestRemoteSolver_HTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "license invalid", http.StatusUnauthorized)
	}))
	defer srv.Close()

	solver := NewRemoteSolver(srv.URL, "bad", zap.NewNop())
	_, err := solver.SolveWhirl(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRemoteSolver_ClampsOutOfRangeAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errorId":0,"slideXProportion":1.7}`)
	}))
	defer srv.Close()

	solver := NewRemoteSolver(srv.URL, "k", zap.NewNop())
	frac, err := solver.SolveSlide(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, frac)
}
