package lookup

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/y0ug/hashguard/internal/database/models"
	"github.com/y0ug/hashguard/internal/metrics"
	"github.com/y0ug/hashguard/internal/prefixindex"
)

const (
	DatasetBreaches  = "breaches"
	DatasetPasswords = "passwords"
)

var (
	// ErrDatasetUnavailable is returned while a dataset has no published snapshot.
	ErrDatasetUnavailable = errors.New("dataset unavailable")
	ErrUnknownDataset     = errors.New("unknown dataset")
)

// Dataset declares a dataset served by the Service.
type Dataset struct {
	Name       string
	HashLength int
}

// DefaultDatasets are the breach (SHA-256 of normalized email or phone) and
// password (SHA-1) datasets.
var DefaultDatasets = []Dataset{
	{Name: DatasetBreaches, HashLength: prefixindex.SHA256Length},
	{Name: DatasetPasswords, HashLength: prefixindex.SHA1Length},
}

// Result is the answer to a range query.
type Result struct {
	Count      int
	Candidates []prefixindex.CandidateRecord
}

type dataset struct {
	Dataset
	holder prefixindex.Holder
}

// Service answers k-anonymity range queries against the active snapshot of each
// dataset. It only ever sees the 5-character prefix, and never logs it above debug.
type Service struct {
	datasets map[string]*dataset
	names    []string
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

// NewService creates a Service for the given datasets, none of them published yet.
func NewService(logger *logrus.Logger, m *metrics.Metrics, datasets ...Dataset) *Service {
	if len(datasets) == 0 {
		datasets = DefaultDatasets
	}
	s := &Service{
		datasets: make(map[string]*dataset, len(datasets)),
		logger:   logger,
		metrics:  m,
	}
	for _, d := range datasets {
		s.datasets[d.Name] = &dataset{Dataset: d}
		s.names = append(s.names, d.Name)
	}
	slices.Sort(s.names)
	return s
}

// Datasets returns the declared datasets.
func (s *Service) Datasets() []Dataset {
	out := make([]Dataset, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.datasets[name].Dataset)
	}
	return out
}

// Publish builds a snapshot from records and makes it the active one. On any error
// the previous snapshot stays active.
func (s *Service) Publish(name string, records []prefixindex.CandidateRecord) error {
	d, ok := s.datasets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}

	snap, err := prefixindex.Build(name, d.HashLength, records)
	if err != nil {
		s.metrics.DatasetPublished(name, 0, err)
		s.logger.WithError(err).WithField("dataset", name).Error("Rejected dataset snapshot, keeping previous one")
		return err
	}

	old := d.holder.Swap(snap)
	s.metrics.DatasetPublished(name, snap.RecordCount(), nil)

	fields := logrus.Fields{
		"dataset":  name,
		"version":  snap.Version,
		"records":  snap.RecordCount(),
		"prefixes": snap.PrefixCount(),
	}
	if old != nil {
		fields["previous_version"] = old.Version
	}
	s.logger.WithFields(fields).Info("Published dataset snapshot")
	return nil
}

// CheckPrefix returns every candidate of dataset name sharing prefix.
func (s *Service) CheckPrefix(name, prefix string) (Result, error) {
	d, ok := s.datasets[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}

	snap := d.holder.Load()
	if snap == nil {
		s.metrics.PrefixLookup(name, "unavailable")
		return Result{}, fmt.Errorf("%w: %s", ErrDatasetUnavailable, name)
	}

	candidates, err := snap.Lookup(prefix)
	if err != nil {
		s.metrics.PrefixLookup(name, "invalid")
		return Result{}, err
	}

	s.metrics.PrefixLookup(name, "ok")
	s.logger.WithFields(logrus.Fields{
		"dataset": name,
		"prefix":  prefix,
		"count":   len(candidates),
	}).Debug("Range query")
	return Result{Count: len(candidates), Candidates: candidates}, nil
}

// Stats returns snapshot metadata for every dataset, in name order.
func (s *Service) Stats() []models.DatasetStats {
	stats := make([]models.DatasetStats, 0, len(s.names))
	for _, name := range s.names {
		st := models.DatasetStats{Name: name}
		if snap := s.datasets[name].holder.Load(); snap != nil {
			st.Available = true
			st.RecordCount = snap.RecordCount()
			st.Version = snap.Version
			st.LastUpdated = snap.BuiltAt
		}
		stats = append(stats, st)
	}
	return stats
}
