package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/y0ug/hashguard/internal/prefixindex"
)

// Publisher makes a new set of records the active snapshot of a dataset.
type Publisher interface {
	Publish(name string, records []prefixindex.CandidateRecord) error
}

// Reloader loads dataset files and republishes them whenever they change on disk.
type Reloader struct {
	sources   []Source
	publisher Publisher
	interval  time.Duration
	sem       *semaphore.Weighted
	logger    *logrus.Logger

	mu       sync.Mutex
	modTimes map[string]time.Time
}

// NewReloader initializes a new Reloader.
func NewReloader(cfg *Config, publisher Publisher, logger *logrus.Logger) *Reloader {
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reloader{
		sources:   cfg.Sources,
		publisher: publisher,
		interval:  cfg.ReloadInterval,
		sem:       semaphore.NewWeighted(concurrency),
		logger:    logger,
		modTimes:  make(map[string]time.Time),
	}
}

// LoadAll loads every source once, regardless of modification time.
func (r *Reloader) LoadAll(ctx context.Context) error {
	return r.reload(ctx, true)
}

// Start polls the sources until ctx is cancelled.
func (r *Reloader) Start(ctx context.Context) {
	if len(r.sources) == 0 || r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Dataset reloader stopped due to context cancellation")
			return
		case <-ticker.C:
			if err := r.reload(ctx, false); err != nil {
				r.logger.WithError(err).Error("Dataset reload failed")
			}
		}
	}
}

func (r *Reloader) reload(ctx context.Context, force bool) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, src := range r.sources {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			defer r.sem.Release(1)
			if err := r.loadSource(src, force); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(src)
	}

	wg.Wait()
	return errors.Join(errs...)
}

func (r *Reloader) loadSource(src Source, force bool) error {
	logger := r.logger.WithFields(logrus.Fields{
		"dataset": src.Name,
		"path":    src.Path,
	})

	info, err := os.Stat(src.Path)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", src.Name, err)
	}

	r.mu.Lock()
	last, seen := r.modTimes[src.Name]
	r.mu.Unlock()
	if !force && seen && info.ModTime().Equal(last) {
		logger.Debug("Dataset file unchanged")
		return nil
	}

	records, err := ReadRecords(src.Path)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", src.Name, err)
	}
	if err := r.publisher.Publish(src.Name, records); err != nil {
		// Remember the rejected file so it is not rebuilt on every tick.
		r.setModTime(src.Name, info.ModTime())
		return fmt.Errorf("dataset %s: %w", src.Name, err)
	}

	r.setModTime(src.Name, info.ModTime())
	logger.WithField("record_count", len(records)).Info("Loaded dataset file")
	return nil
}

func (r *Reloader) setModTime(name string, t time.Time) {
	r.mu.Lock()
	r.modTimes[name] = t
	r.mu.Unlock()
}
