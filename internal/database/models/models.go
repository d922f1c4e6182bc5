package models

import (
	"time"

	"github.com/y0ug/hashguard/internal/prefixindex"
)

// Verdict is the overall classification of a URL.
type Verdict string

const (
	VerdictSafe       Verdict = "safe"
	VerdictSuspicious Verdict = "suspicious"
	VerdictMalicious  Verdict = "malicious"
)

// SignalVerdict is the opinion of a single provider.
type SignalVerdict string

const (
	SignalClean      SignalVerdict = "clean"
	SignalSuspicious SignalVerdict = "suspicious"
	SignalMalicious  SignalVerdict = "malicious"
)

// Valid reports whether v is one of the known signal verdicts.
func (v SignalVerdict) Valid() bool {
	switch v {
	case SignalClean, SignalSuspicious, SignalMalicious:
		return true
	}
	return false
}

// Provider names a signal source.
type Provider string

const (
	ProviderSafeBrowsing Provider = "safe_browsing"
	ProviderCertificate  Provider = "certificate"
	ProviderHeuristic    Provider = "heuristic"
	ProviderDNSBL        Provider = "dnsbl"
	ProviderOpinion      Provider = "opinion"
)

// SignalResult is what one provider said about a URL. Checked is false when the
// provider produced no usable answer (timeout, outage, not applicable). Advisory
// results come from local, lexical checks: they can raise a verdict but never
// vouch for a URL on their own.
type SignalResult struct {
	Provider   Provider      `json:"provider"`
	Checked    bool          `json:"checked"`
	Verdict    SignalVerdict `json:"verdict,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	Advisory   bool          `json:"advisory,omitempty"`
}

// ReputationEntry is the cached outcome of a URL evaluation.
type ReputationEntry struct {
	URLKey     string         `json:"url_key"`
	Verdict    Verdict        `json:"verdict"`
	Signals    []SignalResult `json:"signals"`
	Narrative  string         `json:"narrative,omitempty"`
	ComputedAt time.Time      `json:"computed_at"`

	// Response-only fields, never persisted.
	FromCache bool `json:"from_cache"`
	Stale     bool `json:"stale,omitempty"`
}

// CheckedCount returns how many signals produced a usable answer.
func (e ReputationEntry) CheckedCount() int {
	n := 0
	for _, s := range e.Signals {
		if s.Checked {
			n++
		}
	}
	return n
}

// EvidenceCount returns how many non-advisory signals produced a usable answer.
func (e ReputationEntry) EvidenceCount() int {
	n := 0
	for _, s := range e.Signals {
		if s.Checked && !s.Advisory {
			n++
		}
	}
	return n
}

// PrefixResponse is the body of a range query.
type PrefixResponse struct {
	Dataset    string                        `json:"dataset"`
	Count      int                           `json:"count"`
	Candidates []prefixindex.CandidateRecord `json:"candidates"`
}

// DatasetStats describes the active snapshot of a dataset.
type DatasetStats struct {
	Name        string    `json:"name"`
	Available   bool      `json:"available"`
	RecordCount int       `json:"record_count"`
	Version     string    `json:"version,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitzero"`
}

// StatsResponse represents the structure of the /stats API response.
type StatsResponse struct {
	Datasets          []DatasetStats `json:"datasets"`
	ReputationEntries int            `json:"reputation_entries"`
}

// DatasetUploadError details a rejected dataset upload.
type DatasetUploadError struct {
	Dataset string `json:"dataset"`
	Detail  string `json:"detail"`
}

// URLForgetResponse names the cache key removed by an eviction.
type URLForgetResponse struct {
	URLKey string `json:"url_key"`
}

// URLCheckRequest is the body of a URL verdict request.
type URLCheckRequest struct {
	URL          string `json:"url"`
	ForceRecheck bool   `json:"force_recheck"`
}
