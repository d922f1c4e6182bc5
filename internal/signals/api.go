package signals

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/y0ug/hashguard/internal/database/models"
)

// Provider is one independent source of evidence about a URL.
type Provider interface {
	// ProviderName returns the name of the signal source.
	ProviderName() models.Provider
	// Check inspects the normalized target. An error means the provider produced no
	// usable answer; it is recorded as an unchecked signal, never as a request failure.
	Check(ctx context.Context, target *url.URL) (models.SignalResult, error)
}

// RateLimitedProvider is implemented by providers backed by a metered API.
type RateLimitedProvider interface {
	Provider
	// SetRateLimiter sets the rate limiter for the API client.
	SetRateLimiter(limiter *RateLimiter)
}

// AdvisoryProvider is implemented by providers whose answers are derived from the
// URL text alone. Their clean results are not evidence that a URL is safe.
type AdvisoryProvider interface {
	Provider
	Advisory() bool
}

// IsAdvisory reports whether p only gives advisory answers.
func IsAdvisory(p Provider) bool {
	a, ok := p.(AdvisoryProvider)
	return ok && a.Advisory()
}

type RateLimiter struct {
	Limiter *rate.Limiter
	Burst   int
	Rate    rate.Limit // Requests per second
}

// NewRateLimiter builds a limiter allowing r requests per second with the given burst.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		Limiter: rate.NewLimiter(r, burst),
		Burst:   burst,
		Rate:    r,
	}
}

// Wait blocks until the limiter allows one request. A nil limiter never blocks.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.Limiter == nil {
		return nil
	}
	if err := rl.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

func (rl *RateLimiter) String() string {
	return fmt.Sprintf("rate=%v/s burst=%d", float64(rl.Rate), rl.Burst)
}

// Unchecked builds the result recorded when a provider gave no usable answer.
func Unchecked(provider models.Provider, detail string) models.SignalResult {
	return models.SignalResult{Provider: provider, Checked: false, Detail: detail}
}

func checked(provider models.Provider, verdict models.SignalVerdict, detail string, confidence float64) models.SignalResult {
	return models.SignalResult{
		Provider:   provider,
		Checked:    true,
		Verdict:    verdict,
		Detail:     detail,
		Confidence: &confidence,
	}
}
