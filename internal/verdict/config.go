package verdict

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashguard/internal/reputation"
)

const (
	DefaultProviderTimeout = 10 * time.Second
	DefaultCeiling         = 20 * time.Second
)

// Config holds the verdict aggregation settings.
type Config struct {
	FreshnessWindow     time.Duration
	ProviderTimeout     time.Duration
	Ceiling             time.Duration
	StrictEvidence      bool
	NarrativeEscalation bool
}

// LoadConfig loads aggregation settings from environment variables.
func LoadConfig() (*Config, error) {
	freshnessDays, err := strconv.Atoi(os.Getenv("URL_FRESHNESS_DAYS"))
	if err != nil || freshnessDays <= 0 {
		freshnessDays = int(reputation.DefaultFreshnessWindow / (24 * time.Hour))
		logrus.Infof("Invalid or missing URL_FRESHNESS_DAYS. Defaulting to %d days.", freshnessDays)
	}

	providerTimeout, err := strconv.Atoi(os.Getenv("PROVIDER_TIMEOUT_SECONDS"))
	if err != nil || providerTimeout <= 0 {
		providerTimeout = int(DefaultProviderTimeout / time.Second)
		logrus.Infof("Invalid or missing PROVIDER_TIMEOUT_SECONDS. Defaulting to %d seconds.", providerTimeout)
	}

	ceiling, err := strconv.Atoi(os.Getenv("AGGREGATION_CEILING_SECONDS"))
	if err != nil || ceiling <= 0 {
		ceiling = int(DefaultCeiling / time.Second)
		logrus.Infof("Invalid or missing AGGREGATION_CEILING_SECONDS. Defaulting to %d seconds.", ceiling)
	}

	strict, _ := strconv.ParseBool(os.Getenv("STRICT_EVIDENCE"))
	escalate, _ := strconv.ParseBool(os.Getenv("NARRATIVE_ESCALATION"))

	return &Config{
		FreshnessWindow:     time.Duration(freshnessDays) * 24 * time.Hour,
		ProviderTimeout:     time.Duration(providerTimeout) * time.Second,
		Ceiling:             time.Duration(ceiling) * time.Second,
		StrictEvidence:      strict,
		NarrativeEscalation: escalate,
	}, nil
}
