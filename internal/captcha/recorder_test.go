package captcha

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorder_WritesLabelledAttempt(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(dir, zap.NewNop())
	require.NotNil(t, rec)

	rec.Record(KindSlide, []byte("puzzle"), []byte("piece"), 0.42, true)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "slide")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var got record
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, KindSlide, got.Kind)
	assert.InDelta(t, 0.42, got.Answer, 1e-9)
	assert.True(t, got.Accepted)
	assert.NotEmpty(t, got.ImageA)
}

func TestRecorder_DisabledWhenNoDirConfigured(t *testing.T) {
	rec := NewRecorder("", zap.NewNop())
	assert.Nil(t, rec)
	// Nil receivers are part of the contract.
	rec.Record(KindWhirl, nil, nil, 0, false)
}
