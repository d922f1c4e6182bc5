package signals

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config holds the signal provider configuration.
type Config struct {
	SafeBrowsingAPIKey   string
	SafeBrowsingEndpoint string
	CertificateEnabled   bool
	HeuristicEnabled     bool
	KeywordsFile         string
	DNSBLEnabled         bool
	DNSBLZone            string
	DNSBLResolver        string
	NarratorAPIKey       string
	NarratorEndpoint     string
	NarratorModel        string
	CautionWordsFile     string
	RateLimits           []RateLimitConfig
}

// RateLimitConfig defines rate limiting settings per provider.
type RateLimitConfig struct {
	APIName string
	Rate    rate.Limit // Requests per second
	Burst   int        // Maximum burst size
}

// LoadConfig loads signal provider configuration from environment variables.
func LoadConfig() (*Config, error) {
	rateLimits, err := parseRateLimits(os.Getenv("RATE_LIMITS"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RATE_LIMITS: %v", err)
	}

	narratorKey := os.Getenv("NARRATOR_API_KEY")
	if narratorKey == "" {
		narratorKey = os.Getenv("GROQ_API_KEY")
	}

	return &Config{
		SafeBrowsingAPIKey:   os.Getenv("SAFE_BROWSING_API_KEY"),
		SafeBrowsingEndpoint: getEnv("SAFE_BROWSING_ENDPOINT", DefaultSafeBrowsingEndpoint),
		CertificateEnabled:   getEnvBool("CERTIFICATE_CHECK_ENABLED", true),
		HeuristicEnabled:     getEnvBool("HEURISTIC_ENABLED", true),
		KeywordsFile:         os.Getenv("HEURISTIC_KEYWORDS_FILE"),
		DNSBLEnabled:         getEnvBool("DNSBL_ENABLED", false),
		DNSBLZone:            getEnv("DNSBL_ZONE", DefaultDNSBLZone),
		DNSBLResolver:        os.Getenv("DNSBL_RESOLVER"),
		NarratorAPIKey:       narratorKey,
		NarratorEndpoint:     getEnv("NARRATOR_ENDPOINT", DefaultNarratorEndpoint),
		NarratorModel:        getEnv("NARRATOR_MODEL", DefaultNarratorModel),
		CautionWordsFile:     os.Getenv("CAUTION_WORDS_FILE"),
		RateLimits:           rateLimits,
	}, nil
}

// Set is the assembled provider set.
type Set struct {
	Providers []Provider
	Narrator  Narrator // nil when no narrator is configured
	Caution   *KeywordMatcher
}

// Build instantiates every enabled provider and applies the configured rate limits.
func Build(cfg *Config, logger *logrus.Logger) (*Set, error) {
	set := &Set{}

	if cfg.SafeBrowsingAPIKey != "" {
		sb := NewSafeBrowsingClient(cfg.SafeBrowsingAPIKey)
		sb.Endpoint = cfg.SafeBrowsingEndpoint
		set.Providers = append(set.Providers, sb)
	} else {
		logger.Info("SAFE_BROWSING_API_KEY not set. Safe Browsing provider disabled.")
	}

	if cfg.CertificateEnabled {
		set.Providers = append(set.Providers, NewCertificateChecker())
	}

	if cfg.HeuristicEnabled {
		var keywords []string
		if cfg.KeywordsFile != "" {
			kws, err := LoadKeywords(cfg.KeywordsFile)
			if err != nil {
				return nil, fmt.Errorf("load heuristic keywords: %w", err)
			}
			keywords = kws
		}
		h, err := NewHeuristicChecker(keywords)
		if err != nil {
			return nil, err
		}
		set.Providers = append(set.Providers, h)
	}

	if cfg.DNSBLEnabled {
		d, err := NewDNSBLChecker(cfg.DNSBLZone, cfg.DNSBLResolver)
		if err != nil {
			return nil, err
		}
		set.Providers = append(set.Providers, d)
	}

	limiters := make(map[string]*RateLimiter, len(cfg.RateLimits))
	for _, rl := range cfg.RateLimits {
		limiters[rl.APIName] = NewRateLimiter(rl.Rate, rl.Burst)
	}

	for _, p := range set.Providers {
		rp, ok := p.(RateLimitedProvider)
		if !ok {
			continue
		}
		if limiter, found := limiters[string(p.ProviderName())]; found {
			rp.SetRateLimiter(limiter)
			logger.WithFields(logrus.Fields{
				"provider": p.ProviderName(),
				"limit":    limiter.String(),
			}).Info("Rate limiter applied")
		}
	}

	if cfg.NarratorAPIKey != "" {
		n := NewChatNarrator(cfg.NarratorAPIKey)
		n.Endpoint = cfg.NarratorEndpoint
		n.Model = cfg.NarratorModel
		if limiter, found := limiters["narrator"]; found {
			n.SetRateLimiter(limiter)
		}
		set.Narrator = n
	}

	words := DefaultCautionWords
	if cfg.CautionWordsFile != "" {
		kws, err := LoadKeywords(cfg.CautionWordsFile)
		if err != nil {
			return nil, fmt.Errorf("load caution words: %w", err)
		}
		words = kws
	}
	caution, err := NewKeywordMatcher(words)
	if err != nil {
		return nil, err
	}
	set.Caution = caution

	names := make([]string, len(set.Providers))
	for i, p := range set.Providers {
		names[i] = string(p.ProviderName())
	}
	logger.WithFields(logrus.Fields{
		"providers": strings.Join(names, ","),
		"narrator":  set.Narrator != nil,
	}).Info("Signal providers configured")

	return set, nil
}

// parseRateLimits parses rate limits from a comma-separated list of API:rate:burst.
func parseRateLimits(input string) ([]RateLimitConfig, error) {
	var rateLimits []RateLimitConfig
	if input == "" {
		return rateLimits, nil
	}
	for _, entry := range strings.Split(input, ",") {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid rate limit entry: %s", entry)
		}
		apiName := strings.TrimSpace(parts[0])
		rateValue, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate value in entry '%s': %v", entry, err)
		}
		burstValue, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid burst value in entry '%s': %v", entry, err)
		}
		rateLimits = append(rateLimits, RateLimitConfig{
			APIName: apiName,
			Rate:    rate.Limit(rateValue),
			Burst:   burstValue,
		})
	}
	return rateLimits, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logrus.Infof("Invalid %s=%q. Defaulting to %v.", key, v, fallback)
		return fallback
	}
	return b
}
