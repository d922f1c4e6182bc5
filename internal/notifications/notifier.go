package notifications

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashguard/internal/database/models"
)

// Sender delivers an alert. The verdict aggregator only depends on this.
type Sender interface {
	Send(title, message string) error
}

// Notifier handles sending notifications via Shoutrrr.
type Notifier struct {
	sr     *router.ServiceRouter
	logger *logrus.Logger
}

// NewNotifier initializes a new Notifier with the provided Shoutrrr URLs.
func NewNotifier(urls []string, logger *logrus.Logger) (*Notifier, error) {
	sr, err := router.New(nil, urls...)
	if err != nil {
		return nil, err
	}
	return &Notifier{sr: sr, logger: logger}, nil
}

// Send sends a notification message to all configured services.
func (n *Notifier) Send(title, message string) error {
	params := types.Params{
		"title": title,
	}
	var errs []error
	for _, err := range n.sr.Send(message, &params) {
		if err != nil {
			n.logger.WithError(err).Error("Failed to send notification")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	n.logger.WithField("title", title).Info("Notification sent successfully")
	return nil
}

// MaliciousAlert formats the notification sent when a URL is found malicious.
func MaliciousAlert(entry models.ReputationEntry) (title, message string) {
	title = "Malicious URL detected"

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nVerdict: %s\n", entry.URLKey, entry.Verdict)
	for _, s := range entry.Signals {
		if s.Checked && s.Verdict != models.SignalClean {
			fmt.Fprintf(&sb, "- %s: %s", s.Provider, s.Verdict)
			if s.Detail != "" {
				fmt.Fprintf(&sb, " (%s)", s.Detail)
			}
			sb.WriteString("\n")
		}
	}
	return title, strings.TrimRight(sb.String(), "\n")
}
