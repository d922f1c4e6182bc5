package verdict

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"slices"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidURL is returned for input that cannot be checked.
var ErrInvalidURL = errors.New("invalid URL")

var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
}

// Normalize canonicalizes raw so that equivalent spellings of a URL share one cache
// key. It returns the key and the parsed canonical URL.
//
// Scheme and host are lower-cased, IDN hosts converted to punycode, default ports,
// userinfo and fragments dropped, dot segments and trailing slashes removed, tracking
// parameters removed and the remaining query sorted. Undecodable query pairs are
// kept as they are.
func Normalize(raw string) (string, *url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if net.ParseIP(host) == nil {
		host, err = idna.Lookup.ToASCII(host)
		if err != nil {
			return "", nil, fmt.Errorf("%w: host: %v", ErrInvalidURL, err)
		}
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostport := host
	if strings.Contains(host, ":") {
		hostport = "[" + host + "]"
	}
	if port != "" {
		hostport = net.JoinHostPort(host, port)
	}

	p := u.EscapedPath()
	if p != "" {
		p = path.Clean("/" + p)
		if p == "/" {
			p = ""
		}
	}

	out := &url.URL{
		Scheme:   scheme,
		Host:     hostport,
		RawQuery: normalizeQuery(u.RawQuery),
	}
	if p != "" {
		unescaped, err := url.PathUnescape(p)
		if err != nil {
			return "", nil, fmt.Errorf("%w: path: %v", ErrInvalidURL, err)
		}
		out.Path = unescaped
		out.RawPath = p
	}

	return out.String(), out, nil
}

// normalizeQuery drops tracking parameters and orders the rest by key; repeated
// keys keep their order. Pairs that do not decode (bad escapes, ';' separators) are
// kept verbatim so that they never collapse onto a shorter key.
func normalizeQuery(raw string) string {
	type pair struct {
		key     string
		encoded string
	}
	var pairs []pair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, keyErr := url.QueryUnescape(rawKey)
		value, valueErr := url.QueryUnescape(rawValue)
		if keyErr != nil || valueErr != nil || strings.Contains(part, ";") {
			pairs = append(pairs, pair{key: rawKey, encoded: part})
			continue
		}
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			continue
		}
		pairs = append(pairs, pair{key: key, encoded: url.QueryEscape(key) + "=" + url.QueryEscape(value)})
	}
	slices.SortStableFunc(pairs, func(a, b pair) int {
		return strings.Compare(a.key, b.key)
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p.encoded
	}
	return strings.Join(encoded, "&")
}
