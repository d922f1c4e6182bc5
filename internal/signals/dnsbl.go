package signals

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"

	"github.com/y0ug/hashguard/internal/database/models"
)

const DefaultDNSBLZone = "dbl.spamhaus.org"

// DNSBLChecker looks the registered domain of a URL up in a domain block list.
type DNSBLChecker struct {
	Zone        string
	Resolver    string // host:port
	Client      *dns.Client
	RateLimiter *RateLimiter
}

// NewDNSBLChecker creates a checker querying zone through resolver. An empty resolver
// uses the first nameserver of /etc/resolv.conf.
func NewDNSBLChecker(zone, resolver string) (*DNSBLChecker, error) {
	if zone == "" {
		zone = DefaultDNSBLZone
	}
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("no DNSBL resolver configured: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, fmt.Errorf("no nameserver in /etc/resolv.conf")
		}
		resolver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	return &DNSBLChecker{
		Zone:     strings.Trim(zone, "."),
		Resolver: resolver,
		Client:   &dns.Client{Net: "udp", Timeout: 5 * time.Second},
	}, nil
}

// SetRateLimiter sets the rate limiter for the block list queries.
func (d *DNSBLChecker) SetRateLimiter(limiter *RateLimiter) {
	d.RateLimiter = limiter
}

// ProviderName returns the name of the signal source.
func (d *DNSBLChecker) ProviderName() models.Provider {
	return models.ProviderDNSBL
}

// Check queries <registered-domain>.<zone> for an A record. NXDOMAIN means the
// domain is not listed.
func (d *DNSBLChecker) Check(ctx context.Context, target *url.URL) (models.SignalResult, error) {
	host := target.Hostname()
	if net.ParseIP(host) != nil {
		return Unchecked(d.ProviderName(), "not applicable to IP hosts"), nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return Unchecked(d.ProviderName(), "no registered domain"), nil
	}

	if err := d.RateLimiter.Wait(ctx); err != nil {
		return models.SignalResult{}, err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain+"."+d.Zone), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := d.Client.ExchangeContext(ctx, msg, d.Resolver)
	if err != nil {
		return models.SignalResult{}, fmt.Errorf("dnsbl query: %w", err)
	}

	switch resp.Rcode {
	case dns.RcodeNameError:
		return checked(d.ProviderName(), models.SignalClean, domain+" not listed in "+d.Zone, 0.6), nil
	case dns.RcodeSuccess:
	default:
		return models.SignalResult{}, fmt.Errorf("dnsbl query returned %s", dns.RcodeToString[resp.Rcode])
	}

	var codes []net.IP
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			codes = append(codes, a.A.To4())
		}
	}
	if len(codes) == 0 {
		return checked(d.ProviderName(), models.SignalClean, domain+" not listed in "+d.Zone, 0.6), nil
	}
	return d.classify(domain, codes)
}

// classify maps return codes to a verdict, taking the most severe.
//
//	127.0.1.2-99    listed as spam, phishing, malware or botnet
//	127.0.1.102-199 abused legitimate domain
//	127.255.255.x   query refused by the list operator
func (d *DNSBLChecker) classify(domain string, codes []net.IP) (models.SignalResult, error) {
	verdict := models.SignalVerdict("")
	var seen []string
	for _, ip := range codes {
		if ip == nil {
			continue
		}
		seen = append(seen, ip.String())
		switch {
		case ip[0] == 127 && ip[1] == 255 && ip[2] == 255:
			return models.SignalResult{}, fmt.Errorf("dnsbl refused query: %s", ip)
		case ip[0] == 127 && ip[1] == 0 && ip[2] == 1 && ip[3] >= 2 && ip[3] <= 99:
			verdict = models.SignalMalicious
		case ip[0] == 127 && ip[1] == 0 && ip[2] == 1 && ip[3] >= 102 && ip[3] <= 199:
			if verdict != models.SignalMalicious {
				verdict = models.SignalSuspicious
			}
		}
	}

	detail := fmt.Sprintf("%s listed in %s (%s)", domain, d.Zone, strings.Join(seen, ","))
	switch verdict {
	case models.SignalMalicious:
		return checked(d.ProviderName(), models.SignalMalicious, detail, 0.9), nil
	case models.SignalSuspicious:
		return checked(d.ProviderName(), models.SignalSuspicious, detail, 0.6), nil
	}
	return checked(d.ProviderName(), models.SignalClean, "unrecognized return code "+strings.Join(seen, ","), 0.3), nil
}
