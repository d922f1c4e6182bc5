package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/y0ug/hashguard/internal/database/models"
)

const (
	DefaultNarratorEndpoint = "https://api.groq.com/openai/v1/chat/completions"
	DefaultNarratorModel    = "llama-3.1-8b-instant"
)

// Narrator writes a short human-readable assessment of a URL from the collected
// signals. It never decides the verdict.
type Narrator interface {
	Narrate(ctx context.Context, urlKey string, signals []models.SignalResult) (string, error)
}

// ChatNarrator calls an OpenAI-compatible chat completions endpoint.
type ChatNarrator struct {
	APIKey      string
	Endpoint    string
	Model       string
	MaxTokens   int
	Client      *http.Client
	RateLimiter *RateLimiter
	MaxRetries  uint64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const narratorSystemPrompt = "You are a cybersecurity analyst. You give short, factual assessments of " +
	"whether a URL is safe to visit."

// NewChatNarrator initializes a ChatNarrator with the default endpoint and model.
func NewChatNarrator(apiKey string) *ChatNarrator {
	return &ChatNarrator{
		APIKey:     apiKey,
		Endpoint:   DefaultNarratorEndpoint,
		Model:      DefaultNarratorModel,
		MaxTokens:  200,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 2,
	}
}

// SetRateLimiter sets the rate limiter for the completions API.
func (n *ChatNarrator) SetRateLimiter(limiter *RateLimiter) {
	n.RateLimiter = limiter
}

// Narrate asks the model for a two or three sentence assessment.
func (n *ChatNarrator) Narrate(ctx context.Context, urlKey string, signals []models.SignalResult) (string, error) {
	if err := n.RateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := chatRequest{
		Model: n.Model,
		Messages: []chatMessage{
			{Role: "system", Content: narratorSystemPrompt},
			{Role: "user", Content: buildNarrativePrompt(urlKey, signals)},
		},
		MaxTokens:   n.MaxTokens,
		Temperature: 0.3,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var parsed chatResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.APIKey)

		resp, err := n.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			parsed = chatResponse{}
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("completions API returned status: %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("completions API returned status: %d", resp.StatusCode))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, n.MaxRetries), ctx)); err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completions API returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func buildNarrativePrompt(urlKey string, signals []models.SignalResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assess this URL concisely.\n\nURL: %s\n\nCheck results:\n", urlKey)
	for _, s := range signals {
		if !s.Checked {
			fmt.Fprintf(&sb, "- %s: not checked\n", s.Provider)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s", s.Provider, s.Verdict)
		if s.Detail != "" {
			fmt.Fprintf(&sb, " (%s)", s.Detail)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nAnswer in at most three sentences. Say whether the URL looks SAFE, " +
		"SUSPICIOUS or DANGEROUS, taking the domain, URL structure and common phishing " +
		"patterns into account.")
	return sb.String()
}
