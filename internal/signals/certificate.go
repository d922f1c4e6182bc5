package signals

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/y0ug/hashguard/internal/database/models"
)

// CertificateChecker inspects the TLS certificate served for a URL.
//
// A plain http URL is suspicious, an expired certificate is suspicious, and any other
// verification failure (unknown authority, hostname mismatch) is malicious. Network
// failures leave the signal unchecked.
type CertificateChecker struct {
	Dialer  *net.Dialer
	RootCAs *x509.CertPool // nil uses the system pool
	Now     func() time.Time
}

// NewCertificateChecker initializes a checker with a bounded dial timeout.
func NewCertificateChecker() *CertificateChecker {
	return &CertificateChecker{
		Dialer: &net.Dialer{Timeout: 10 * time.Second},
		Now:    time.Now,
	}
}

// ProviderName returns the name of the signal source.
func (c *CertificateChecker) ProviderName() models.Provider {
	return models.ProviderCertificate
}

// Check performs a TLS handshake with the target host and classifies the outcome.
func (c *CertificateChecker) Check(ctx context.Context, target *url.URL) (models.SignalResult, error) {
	if target.Scheme != "https" {
		return checked(c.ProviderName(), models.SignalSuspicious, "site does not use HTTPS", 0.6), nil
	}

	host := target.Hostname()
	port := target.Port()
	if port == "" {
		port = "443"
	}

	dialer := &tls.Dialer{
		NetDialer: c.Dialer,
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    c.RootCAs,
			MinVersion: tls.VersionTLS12,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return classifyHandshakeError(c.ProviderName(), err)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return models.SignalResult{}, fmt.Errorf("unexpected connection type %T", conn)
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return checked(c.ProviderName(), models.SignalSuspicious, "no certificate presented", 0.6), nil
	}

	leaf := state.PeerCertificates[0]
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	expiry := leaf.NotAfter.UTC().Format(time.RFC3339)
	if now.After(leaf.NotAfter) {
		return checked(c.ProviderName(), models.SignalSuspicious, "certificate expired on "+expiry, 0.7), nil
	}

	issuer := leaf.Issuer.CommonName
	if len(leaf.Issuer.Organization) > 0 {
		issuer = leaf.Issuer.Organization[0]
	}
	if issuer == "" {
		issuer = "unknown issuer"
	}
	return checked(c.ProviderName(), models.SignalClean, fmt.Sprintf("valid certificate issued by %s, expires %s", issuer, expiry), 0.8), nil
}

func classifyHandshakeError(provider models.Provider, err error) (models.SignalResult, error) {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		return checked(provider, models.SignalSuspicious, "certificate expired", 0.7), nil
	}

	var (
		verifyErr    *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidOther x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &unknownAuth):
		return checked(provider, models.SignalMalicious, "certificate signed by an untrusted authority", 0.8), nil
	case errors.As(err, &hostnameErr):
		return checked(provider, models.SignalMalicious, "certificate does not match host", 0.8), nil
	case errors.As(err, &invalidOther), errors.As(err, &verifyErr):
		return checked(provider, models.SignalMalicious, "certificate verification failed: "+err.Error(), 0.8), nil
	}
	return models.SignalResult{}, fmt.Errorf("tls handshake: %w", err)
}
