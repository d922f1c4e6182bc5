package notifications

import (
	"os"
	"strings"
)

// NotificationConfig holds the notification-related configuration.
type NotificationConfig struct {
	ShoutrrrURLs []string
}

// Enabled reports whether any notification service is configured.
func (c *NotificationConfig) Enabled() bool {
	return c != nil && len(c.ShoutrrrURLs) > 0
}

// LoadNotificationConfig loads notification configuration from environment variables.
// Notifications are optional: an unset SHOUTRRR_URLS yields a disabled config.
func LoadNotificationConfig() (*NotificationConfig, error) {
	return &NotificationConfig{
		ShoutrrrURLs: parseShoutrrrURLs(os.Getenv("SHOUTRRR_URLS")),
	}, nil
}

// parseShoutrrrURLs parses a comma-separated list of Shoutrrr URLs.
func parseShoutrrrURLs(urls string) []string {
	var result []string
	for _, url := range strings.Split(urls, ",") {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
