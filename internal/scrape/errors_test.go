package scrape

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateError_MatchesSentinelKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not available", NotAvailablef("user %q", "ghost"), ErrNotAvailable},
		{"no content", NoContentf("profile is private"), ErrNoContent},
		{"captcha", Captchaf("slide attempts exhausted"), ErrCaptcha},
		{"api failed", APIFailedf("HTTP %d", 403), ErrAPIFailed},
		{"timeout", Timeoutf("no traffic after %d sweeps", 10), ErrTimeout},
		{"invalid format", InvalidFormatf("no known blob"), ErrInvalidFormat},
		{"login required", LoginRequiredf("comments need a session"), ErrLoginRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.sentinel)
			// Kinds are disjoint; a timeout must never read as a captcha.
			for _, other := range tests {
				if other.sentinel != tc.sentinel {
					assert.NotErrorIs(t, tc.err, other.sentinel)
				}
			}
		})
	}
}

func TestStateError_MessageCarriesDetail(t *testing.T) {
	err := NotAvailablef("user %q", "ghost")
	assert.Equal(t, `content not available: user "ghost"`, err.Error())

	bare := &StateError{Kind: ErrTimeout}
	assert.Equal(t, "timed out", bare.Error())
}

func TestStateError_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("hydrating profile: %w", NotAvailablef("gone"))
	assert.ErrorIs(t, err, ErrNotAvailable)

	var state *StateError
	assert.True(t, errors.As(err, &state))
	assert.Equal(t, "gone", state.Detail)
}
