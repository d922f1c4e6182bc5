package prefixindex

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PrefixLength is the number of hex characters a client reveals in a range query.
const PrefixLength = 5

// Common hash lengths in hex characters.
const (
	SHA1Length   = 40
	SHA256Length = 64
)

var (
	ErrInvalidPrefix   = errors.New("invalid hash prefix")
	ErrMalformedRecord = errors.New("malformed dataset record")
)

var hexPattern = regexp.MustCompile("^[A-F0-9]+$")

// CandidateRecord is one entry of a dataset snapshot.
type CandidateRecord struct {
	FullHash    string    `json:"hash"`
	SourceTags  []string  `json:"sources,omitempty"`
	FirstSeen   time.Time `json:"first_seen,omitzero"`
	Occurrences int       `json:"occurrences,omitempty"` // Prevalence count, password datasets only
}

// Prefix returns the range key of the record.
func (r CandidateRecord) Prefix() string {
	if len(r.FullHash) < PrefixLength {
		return ""
	}
	return r.FullHash[:PrefixLength]
}

// NormalizeHash upper-cases the hash and checks it is hex of the expected length.
func NormalizeHash(hash string, length int) (string, error) {
	hash = strings.ToUpper(strings.TrimSpace(hash))
	if len(hash) != length {
		return "", fmt.Errorf("%w: hash %q has length %d, expected %d", ErrMalformedRecord, hash, len(hash), length)
	}
	if !hexPattern.MatchString(hash) {
		return "", fmt.Errorf("%w: hash %q must contain only hexadecimal characters", ErrMalformedRecord, hash)
	}
	return hash, nil
}

// NormalizePrefix validates a client supplied prefix and returns its canonical form.
func NormalizePrefix(prefix string) (string, error) {
	if len(prefix) != PrefixLength {
		return "", fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidPrefix, PrefixLength, len(prefix))
	}
	prefix = strings.ToUpper(prefix)
	if !hexPattern.MatchString(prefix) {
		return "", fmt.Errorf("%w: prefix must contain only hexadecimal characters", ErrInvalidPrefix)
	}
	return prefix, nil
}
