package signals

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/y0ug/hashguard/internal/database/models"
)

// DefaultLureKeywords are words commonly planted in phishing hostnames and paths.
var DefaultLureKeywords = []string{
	"login", "signin", "verify", "account", "secure", "update", "banking",
	"wallet", "password", "confirm", "webscr", "paypal", "appleid", "support",
}

const (
	heuristicThreshold = 2
	maxURLLength       = 150
	maxKeywordScore    = 2
)

// HeuristicChecker scores lexical features of a URL. It never touches the network.
type HeuristicChecker struct {
	matcher *KeywordMatcher
}

// NewHeuristicChecker builds a checker over the given lure keywords. An empty list
// uses DefaultLureKeywords.
func NewHeuristicChecker(keywords []string) (*HeuristicChecker, error) {
	if len(keywords) == 0 {
		keywords = DefaultLureKeywords
	}
	m, err := NewKeywordMatcher(keywords)
	if err != nil {
		return nil, err
	}
	return &HeuristicChecker{matcher: m}, nil
}

// ProviderName returns the name of the signal source.
func (h *HeuristicChecker) ProviderName() models.Provider {
	return models.ProviderHeuristic
}

// Advisory marks heuristic results as lexical only.
func (h *HeuristicChecker) Advisory() bool {
	return true
}

// Check scores the URL and reports suspicious once the score reaches the threshold.
func (h *HeuristicChecker) Check(ctx context.Context, target *url.URL) (models.SignalResult, error) {
	if err := ctx.Err(); err != nil {
		return models.SignalResult{}, err
	}

	host := target.Hostname()
	score := 0
	var reasons []string

	if net.ParseIP(host) != nil {
		score += 2
		reasons = append(reasons, "ip literal host")
	} else {
		labels := strings.Split(host, ".")
		for _, l := range labels {
			if strings.HasPrefix(l, "xn--") {
				score++
				reasons = append(reasons, "punycode label")
				break
			}
		}
		if len(labels) > 4 {
			score++
			reasons = append(reasons, "deep subdomain")
		}
		if strings.Count(host, "-") >= 3 {
			score++
			reasons = append(reasons, "many hyphens")
		}
	}

	if len(target.String()) > maxURLLength {
		score++
		reasons = append(reasons, "long url")
	}

	// Keywords in the registered domain itself are the site's own name.
	subject := subdomainPart(host) + " " + target.Path
	if hits := h.matcher.Find(subject); len(hits) > 0 {
		score += min(len(hits), maxKeywordScore)
		reasons = append(reasons, "keywords: "+strings.Join(hits, ","))
	}

	detail := fmt.Sprintf("score %d", score)
	if len(reasons) > 0 {
		detail += " (" + strings.Join(reasons, "; ") + ")"
	}
	if score >= heuristicThreshold {
		return checked(h.ProviderName(), models.SignalSuspicious, detail, 0.5), nil
	}
	return checked(h.ProviderName(), models.SignalClean, detail, 0.3), nil
}

// subdomainPart returns host without its registered domain, or "" when host is
// itself a registered domain or cannot be split.
func subdomainPart(host string) string {
	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || registered == host {
		return ""
	}
	return strings.TrimSuffix(host, "."+registered)
}
