package notifications

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/y0ug/hashguard/internal/database/models"
)

func TestLoadNotificationConfig(t *testing.T) {
	t.Setenv("SHOUTRRR_URLS", "")
	cfg, err := LoadNotificationConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled())

	t.Setenv("SHOUTRRR_URLS", " logger:// , ,generic://example.com ")
	cfg, err = LoadNotificationConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled())
	assert.Equal(t, []string{"logger://", "generic://example.com"}, cfg.ShoutrrrURLs)
}

func TestNotifierSend(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	n, err := NewNotifier([]string{"logger://"}, logger)
	require.NoError(t, err)
	require.NoError(t, n.Send("title", "message"))
	assert.Contains(t, buf.String(), "Notification sent successfully")
}

func TestNewNotifierRejectsUnknownService(t *testing.T) {
	_, err := NewNotifier([]string{"nosuchservice://x"}, logrus.New())
	assert.Error(t, err)
}

func TestMaliciousAlert(t *testing.T) {
	title, msg := MaliciousAlert(models.ReputationEntry{
		URLKey:  "https://evil.test/login",
		Verdict: models.VerdictMalicious,
		Signals: []models.SignalResult{
			{Provider: models.ProviderSafeBrowsing, Checked: true, Verdict: models.SignalMalicious, Detail: "threats: MALWARE"},
			{Provider: models.ProviderCertificate, Checked: true, Verdict: models.SignalClean},
			{Provider: models.ProviderDNSBL, Checked: false},
		},
	})
	assert.Equal(t, "Malicious URL detected", title)
	assert.Contains(t, msg, "https://evil.test/login")
	assert.Contains(t, msg, "safe_browsing: malicious (threats: MALWARE)")
	assert.NotContains(t, msg, "certificate")
	assert.NotContains(t, msg, "dnsbl")
}
