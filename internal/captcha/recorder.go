package captcha

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder archives solve attempts to disk as JSON, one file per
// attempt. The archive doubles as a labelled dataset: each record holds
// the puzzle images, the computed answer, and whether the site accepted
// it.
type Recorder struct {
	dir    string
	logger *zap.Logger
}

// NewRecorder returns a Recorder writing under dir, or nil when dir is
// empty. A nil Recorder is safe to call.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	if dir == "" {
		return nil
	}
	return &Recorder{dir: dir, logger: logger.Named("captcha_recorder")}
}

type record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	ImageA    string    `json:"image_a_b64"`
	ImageB    string    `json:"image_b_b64"`
	Answer    float64   `json:"answer"`
	Accepted  bool      `json:"accepted"`
}

// Record persists one attempt. Failures are logged, not returned; a full
// disk should never abort a scrape.
func (r *Recorder) Record(kind Kind, imgA, imgB []byte, answer float64, accepted bool) {
	if r == nil {
		return
	}

	rec := record{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		ImageA:    base64.StdEncoding.EncodeToString(imgA),
		ImageB:    base64.StdEncoding.EncodeToString(imgB),
		Answer:    answer,
		Accepted:  accepted,
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.logger.Warn("Failed to create captcha archive directory.", zap.Error(err))
		return
	}

	name := fmt.Sprintf("%s_%s_%s.json", rec.Timestamp.Format("20060102T150405"), kind, rec.ID[:8])
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		r.logger.Warn("Failed to encode captcha record.", zap.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(r.dir, name), data, 0o644); err != nil {
		r.logger.Warn("Failed to write captcha record.", zap.Error(err))
		return
	}
	r.logger.Debug("Captcha attempt archived.", zap.String("file", name), zap.Bool("accepted", accepted))
}
