package prefixindex

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable, versioned dataset with its prefix partitions.
// A Snapshot is never modified after Build returns it.
type Snapshot struct {
	Name       string
	Version    string
	HashLength int
	BuiltAt    time.Time

	partitions  map[string][]CandidateRecord
	recordCount int
}

// Build partitions records by their first PrefixLength characters. Records sharing a
// hash are merged. A single invalid hash rejects the whole dataset.
func Build(name string, hashLength int, records []CandidateRecord) (*Snapshot, error) {
	if hashLength < PrefixLength {
		return nil, fmt.Errorf("%w: hash length %d is shorter than the prefix", ErrMalformedRecord, hashLength)
	}

	byHash := make(map[string]*CandidateRecord, len(records))
	for i, rec := range records {
		hash, err := NormalizeHash(rec.FullHash, hashLength)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		if existing, ok := byHash[hash]; ok {
			mergeRecord(existing, rec)
			continue
		}

		normalized := CandidateRecord{
			FullHash:    hash,
			SourceTags:  normalizeTags(rec.SourceTags),
			FirstSeen:   rec.FirstSeen.UTC(),
			Occurrences: rec.Occurrences,
		}
		byHash[hash] = &normalized
	}

	partitions := make(map[string][]CandidateRecord)
	for hash, rec := range byHash {
		key := hash[:PrefixLength]
		partitions[key] = append(partitions[key], *rec)
	}
	for _, part := range partitions {
		sort.Slice(part, func(i, j int) bool { return part[i].FullHash < part[j].FullHash })
	}

	return &Snapshot{
		Name:        name,
		Version:     uuid.NewString(),
		HashLength:  hashLength,
		BuiltAt:     time.Now().UTC(),
		partitions:  partitions,
		recordCount: len(byHash),
	}, nil
}

// Lookup returns every record whose hash starts with prefix. An unknown prefix yields
// an empty, non-nil slice.
func (s *Snapshot) Lookup(prefix string) ([]CandidateRecord, error) {
	key, err := NormalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	part, ok := s.partitions[key]
	if !ok {
		return []CandidateRecord{}, nil
	}
	return slices.Clone(part), nil
}

// Contains reports whether the exact hash is part of the snapshot.
func (s *Snapshot) Contains(fullHash string) bool {
	hash := strings.ToUpper(strings.TrimSpace(fullHash))
	if len(hash) != s.HashLength {
		return false
	}
	part := s.partitions[hash[:PrefixLength]]
	i := sort.Search(len(part), func(i int) bool { return part[i].FullHash >= hash })
	return i < len(part) && part[i].FullHash == hash
}

// RecordCount is the number of distinct hashes in the snapshot.
func (s *Snapshot) RecordCount() int {
	return s.recordCount
}

// PrefixCount is the number of non-empty partitions.
func (s *Snapshot) PrefixCount() int {
	return len(s.partitions)
}

func mergeRecord(dst *CandidateRecord, src CandidateRecord) {
	dst.SourceTags = normalizeTags(append(dst.SourceTags, src.SourceTags...))
	if !src.FirstSeen.IsZero() && (dst.FirstSeen.IsZero() || src.FirstSeen.Before(dst.FirstSeen)) {
		dst.FirstSeen = src.FirstSeen.UTC()
	}
	dst.Occurrences += src.Occurrences
}

// normalizeTags trims, de-duplicates and sorts tags so rebuilds are deterministic.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
