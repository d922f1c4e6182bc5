package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/y0ug/hashguard/internal/database/models"
)

const DefaultSafeBrowsingEndpoint = "https://safebrowsing.googleapis.com/v4/threatMatches:find"

// SafeBrowsingClient implements the Provider interface for the Google Safe Browsing
// v4 Lookup API.
type SafeBrowsingClient struct {
	APIKey      string
	Endpoint    string
	ClientID    string
	Client      *http.Client
	RateLimiter *RateLimiter
	MaxRetries  uint64
}

type sbThreatEntry struct {
	URL string `json:"url"`
}

type sbRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string        `json:"threatTypes"`
		PlatformTypes    []string        `json:"platformTypes"`
		ThreatEntryTypes []string        `json:"threatEntryTypes"`
		ThreatEntries    []sbThreatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type sbResponse struct {
	Matches []struct {
		ThreatType   string `json:"threatType"`
		PlatformType string `json:"platformType"`
	} `json:"matches"`
}

// NewSafeBrowsingClient initializes a new SafeBrowsingClient.
func NewSafeBrowsingClient(apiKey string) *SafeBrowsingClient {
	return &SafeBrowsingClient{
		APIKey:     apiKey,
		Endpoint:   DefaultSafeBrowsingEndpoint,
		ClientID:   "hashguard-url-checker",
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 2,
	}
}

// SetRateLimiter sets the rate limiter for the SafeBrowsingClient.
func (sb *SafeBrowsingClient) SetRateLimiter(limiter *RateLimiter) {
	sb.RateLimiter = limiter
}

// ProviderName returns the name of the API provider.
func (sb *SafeBrowsingClient) ProviderName() models.Provider {
	return models.ProviderSafeBrowsing
}

// Check asks Safe Browsing whether the URL matches any known threat list.
func (sb *SafeBrowsingClient) Check(ctx context.Context, target *url.URL) (models.SignalResult, error) {
	if err := sb.RateLimiter.Wait(ctx); err != nil {
		return models.SignalResult{}, err
	}

	var payload sbRequest
	payload.Client.ClientID = sb.ClientID
	payload.Client.ClientVersion = "1.0.0"
	payload.ThreatInfo.ThreatTypes = []string{
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}
	payload.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	payload.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	payload.ThreatInfo.ThreatEntries = []sbThreatEntry{{URL: target.String()}}

	body, err := json.Marshal(payload)
	if err != nil {
		return models.SignalResult{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s?key=%s", sb.Endpoint, url.QueryEscape(sb.APIKey))

	var parsed sbResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := sb.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			parsed = sbResponse{}
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("Safe Browsing API returned status: %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("Safe Browsing API returned status: %d", resp.StatusCode))
		}
	}

	if err := backoff.Retry(operation, sb.backoff(ctx)); err != nil {
		return models.SignalResult{}, err
	}

	if len(parsed.Matches) == 0 {
		return checked(sb.ProviderName(), models.SignalClean, "no threats found", 0.9), nil
	}

	var threats []string
	for _, m := range parsed.Matches {
		threats = append(threats, m.ThreatType)
	}
	return checked(sb.ProviderName(), models.SignalMalicious, "threats: "+strings.Join(threats, ","), 1.0), nil
}

func (sb *SafeBrowsingClient) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, sb.MaxRetries), ctx)
}
