package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/y0ug/hashguard/internal/database/models"
)

func sig(provider models.Provider, verdict models.SignalVerdict) models.SignalResult {
	return models.SignalResult{Provider: provider, Checked: true, Verdict: verdict}
}

func unchecked(provider models.Provider) models.SignalResult {
	return models.SignalResult{Provider: provider, Detail: "timeout"}
}

func advisory(provider models.Provider, verdict models.SignalVerdict) models.SignalResult {
	s := sig(provider, verdict)
	s.Advisory = true
	return s
}

func TestCompose(t *testing.T) {
	sb, cert, dnsbl := models.ProviderSafeBrowsing, models.ProviderCertificate, models.ProviderDNSBL
	heur := models.ProviderHeuristic

	tests := []struct {
		name    string
		signals []models.SignalResult
		want    models.Verdict
		strict  models.Verdict
	}{
		{"no signals", nil, models.VerdictSuspicious, models.VerdictSuspicious},
		{"all unchecked", []models.SignalResult{unchecked(sb), unchecked(cert)}, models.VerdictSuspicious, models.VerdictSuspicious},
		{"all clean", []models.SignalResult{sig(sb, models.SignalClean), sig(cert, models.SignalClean)}, models.VerdictSafe, models.VerdictSafe},
		{"clean and unchecked", []models.SignalResult{sig(sb, models.SignalClean), unchecked(cert)}, models.VerdictSafe, models.VerdictSuspicious},
		{"one suspicious", []models.SignalResult{sig(sb, models.SignalClean), sig(cert, models.SignalSuspicious)}, models.VerdictSuspicious, models.VerdictSuspicious},
		{"malicious beats suspicious", []models.SignalResult{sig(sb, models.SignalSuspicious), sig(cert, models.SignalMalicious)}, models.VerdictMalicious, models.VerdictMalicious},
		{"malicious with unchecked", []models.SignalResult{unchecked(sb), sig(dnsbl, models.SignalMalicious)}, models.VerdictMalicious, models.VerdictMalicious},
		{"only advisory clean", []models.SignalResult{unchecked(sb), advisory(heur, models.SignalClean)}, models.VerdictSuspicious, models.VerdictSuspicious},
		{"advisory clean with clean", []models.SignalResult{sig(sb, models.SignalClean), advisory(heur, models.SignalClean)}, models.VerdictSafe, models.VerdictSafe},
		{"advisory suspicious", []models.SignalResult{sig(sb, models.SignalClean), advisory(heur, models.SignalSuspicious)}, models.VerdictSuspicious, models.VerdictSuspicious},
		{"unknown verdict", []models.SignalResult{{Provider: sb, Checked: true, Verdict: "weird"}}, models.VerdictSuspicious, models.VerdictSuspicious},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compose(tt.signals, false))
			assert.Equal(t, tt.strict, Compose(tt.signals, true))
		})
	}
}

func TestComposeIsOrderIndependent(t *testing.T) {
	signals := []models.SignalResult{
		sig(models.ProviderSafeBrowsing, models.SignalClean),
		sig(models.ProviderCertificate, models.SignalSuspicious),
		unchecked(models.ProviderDNSBL),
		sig(models.ProviderHeuristic, models.SignalMalicious),
	}
	want := Compose(signals, false)
	for i := range signals {
		rotated := append(append([]models.SignalResult{}, signals[i:]...), signals[:i]...)
		assert.Equal(t, want, Compose(rotated, false))
	}
}
