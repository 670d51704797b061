package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkdynamics/gotok/internal/scrape"
)

// Test Cases: page text classification

func TestClassifyText(t *testing.T) {
	probe := Probe{
		ContentSelector:    `[data-e2e="user-post-item"]`,
		UnavailablePhrases: []string{"Couldn't find this account"},
		EmptyPhrases:       []string{"No content", "This account is private"},
	}

	tests := []struct {
		name string
		body string
		want State
	}{
		{"slide captcha", "Loading... Drag the slider to fit the puzzle ...", StateChallenge},
		{"whirl captcha", "Rotate the shapes to match", StateChallenge},
		{"shape captcha", "Click on the shapes with the same size", StateChallenge},
		{"verify banner", "Verify to continue: something", StateChallenge},
		{"missing account", "Couldn't find this account. Try searching.", StateUnavailable},
		{"private account", "This account is private. Follow to see.", StateEmpty},
		{"empty feed", "No content yet", StateEmpty},
		{"nothing recognized", "Welcome to the page", StateUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyText(tc.body, probe))
		})
	}
}

func TestClassifyText_ChallengeWinsOverOtherStates(t *testing.T) {
	probe := Probe{UnavailablePhrases: []string{"Video currently unavailable"}}
	body := "Video currently unavailable ... Drag the slider to fit the puzzle"
	assert.Equal(t, StateChallenge, classifyText(body, probe),
		"the overlay renders on top of whatever copy is underneath")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "content", StateContent.String())
	assert.Equal(t, "challenge", StateChallenge.String())
	assert.Equal(t, "unavailable", StateUnavailable.String())
	assert.Equal(t, "empty", StateEmpty.String())
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "unknown", State(99).String())
}

// Test Cases: challenge metadata decoding

func TestDecodeChallenge_InlineGeneration(t *testing.T) {
	body := []byte(`{
	  "data": {
	    "mode": "slide",
	    "id": "ch-1",
	    "question": {"url1": "https://p.test/a.jpg", "url2": "https://p.test/b.jpg", "tip_y": 120}
	  }
	}`)

	meta, err := decodeChallenge(body)
	require.NoError(t, err)
	assert.Equal(t, "slide", meta.Mode)
	assert.Equal(t, "https://p.test/a.jpg", meta.Question.URL1)
	assert.InDelta(t, 120, meta.Question.TipY, 1e-9)
}

func TestDecodeChallenge_ListGeneration(t *testing.T) {
	body := []byte(`{
	  "data": {
	    "challenges": [
	      {"mode": "whirl", "id": "ch-2", "question": {"url1": "https://p.test/outer.jpg", "url2": "https://p.test/inner.jpg"}},
	      {"mode": "slide", "id": "ch-3", "question": {}}
	    ]
	  }
	}`)

	meta, err := decodeChallenge(body)
	require.NoError(t, err)
	assert.Equal(t, "whirl", meta.Mode, "the first listed challenge is the active one")
	assert.Equal(t, "ch-2", meta.ID)
}

func TestDecodeChallenge_Rejections(t *testing.T) {
	_, err := decodeChallenge([]byte(`not json`))
	assert.ErrorIs(t, err, scrape.ErrCaptcha)

	_, err = decodeChallenge([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, scrape.ErrCaptcha)
}
