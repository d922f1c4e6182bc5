package signals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0ug/hashguard/internal/database/models"
)

func TestChatNarratorReturnsAssessment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer narrator-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "https://example.com")
		assert.Contains(t, req.Messages[1].Content, "certificate: not checked")

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  The site looks safe.  "}}]}`))
	}))
	defer server.Close()

	n := NewChatNarrator("narrator-key")
	n.Endpoint = server.URL
	got, err := n.Narrate(context.Background(), "https://example.com", []models.SignalResult{
		checked(models.ProviderSafeBrowsing, models.SignalClean, "no threats found", 0.9),
		Unchecked(models.ProviderCertificate, "timeout"),
	})
	require.NoError(t, err)
	assert.Equal(t, "The site looks safe.", got)
}

func TestChatNarratorEmptyChoicesIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	n := NewChatNarrator("k")
	n.Endpoint = server.URL
	_, err := n.Narrate(context.Background(), "https://example.com", nil)
	assert.Error(t, err)
}

func TestOpinionSignal(t *testing.T) {
	m, err := NewKeywordMatcher(DefaultCautionWords)
	require.NoError(t, err)

	_, ok := OpinionSignal(m, "The site appears legitimate.")
	assert.False(t, ok)

	_, ok = OpinionSignal(m, "")
	assert.False(t, ok)

	result, ok := OpinionSignal(m, "Recomendo cautela: o domínio parece suspeito.")
	require.True(t, ok)
	assert.Equal(t, models.ProviderOpinion, result.Provider)
	assert.Equal(t, models.SignalSuspicious, result.Verdict)
	assert.Contains(t, result.Detail, "cautela")
}
