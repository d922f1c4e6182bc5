package verdict

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/y0ug/hashguard/internal/database/models"
	"github.com/y0ug/hashguard/internal/metrics"
	"github.com/y0ug/hashguard/internal/notifications"
	"github.com/y0ug/hashguard/internal/reputation"
	"github.com/y0ug/hashguard/internal/signals"
)

const detailAggregationTimeout = "aggregation timeout"

// Options alter a single evaluation.
type Options struct {
	// ForceRecheck ignores a fresh cached verdict.
	ForceRecheck bool
}

// Aggregator computes URL verdicts from independent signal providers and caches them.
type Aggregator struct {
	cache     *reputation.Cache
	providers []signals.Provider
	narrator  signals.Narrator
	caution   *signals.KeywordMatcher
	notifier  notifications.Sender
	metrics   *metrics.Metrics
	cfg       Config
	logger    *logrus.Logger
	now       func() time.Time

	notifyWG sync.WaitGroup
}

// New creates an Aggregator. set may be nil, which yields an aggregator without
// providers: every verdict it computes is suspicious.
func New(cache *reputation.Cache, set *signals.Set, cfg *Config, logger *logrus.Logger) *Aggregator {
	a := &Aggregator{
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
	if cfg != nil {
		a.cfg = *cfg
	}
	if a.cfg.ProviderTimeout <= 0 {
		a.cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if a.cfg.Ceiling <= 0 {
		a.cfg.Ceiling = DefaultCeiling
	}
	if set != nil {
		a.providers = slices.Clone(set.Providers)
		a.narrator = set.Narrator
		a.caution = set.Caution
	}
	return a
}

// SetNotifier sets where malicious verdicts are reported.
func (a *Aggregator) SetNotifier(n notifications.Sender) {
	a.notifier = n
}

// SetMetrics sets the metrics sink.
func (a *Aggregator) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Close waits for pending notifications.
func (a *Aggregator) Close() {
	a.notifyWG.Wait()
}

// Evaluate returns the verdict for rawURL. A fresh cached verdict is returned as is;
// otherwise concurrent callers for the same URL share one computation. Provider
// failures never fail the request; only malformed input does.
func (a *Aggregator) Evaluate(ctx context.Context, rawURL string, opts Options) (models.ReputationEntry, error) {
	key, target, err := Normalize(rawURL)
	if err != nil {
		return models.ReputationEntry{}, err
	}

	if !opts.ForceRecheck {
		if entry, ok := a.freshEntry(ctx, key); ok {
			a.metrics.CacheResult("hit")
			return entry, nil
		}
	}
	a.metrics.CacheResult("miss")

	var (
		entry  models.ReputationEntry
		shared bool
	)
	if opts.ForceRecheck {
		// Forced rechecks never join a regular computation, which may settle for a
		// fresh entry.
		entry, shared, err = a.cache.DoForced(ctx, key, func(fctx context.Context) (models.ReputationEntry, error) {
			return a.compute(fctx, key, target), nil
		})
	} else {
		entry, shared, err = a.cache.Do(ctx, key, func(fctx context.Context) (models.ReputationEntry, error) {
			// A computation that completed while this one was queued may have refreshed the key.
			if entry, ok := a.freshEntry(fctx, key); ok {
				return entry, nil
			}
			return a.compute(fctx, key, target), nil
		})
	}
	if err != nil {
		return models.ReputationEntry{}, err
	}
	if shared {
		a.metrics.CacheResult("shared")
	}
	return entry, nil
}

func (a *Aggregator) freshEntry(ctx context.Context, key string) (models.ReputationEntry, bool) {
	entry, ok := a.cache.Get(ctx, key)
	if !ok || !a.cache.IsFresh(entry, a.now()) {
		return models.ReputationEntry{}, false
	}
	entry.FromCache = true
	entry.Stale = false
	return entry, true
}

// Forget drops the stored verdict for rawURL so that the next evaluation recomputes it.
func (a *Aggregator) Forget(ctx context.Context, rawURL string) (string, error) {
	key, _, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	if err := a.cache.Delete(ctx, key); err != nil {
		return key, err
	}
	a.logger.WithField("url_key", key).Info("Reputation entry removed")
	return key, nil
}

// compute collects signals and narrates them under a single ceiling.
func (a *Aggregator) compute(ctx context.Context, key string, target *url.URL) models.ReputationEntry {
	start := a.now()
	ceilingCtx, cancel := context.WithTimeout(ctx, a.cfg.Ceiling)
	defer cancel()

	results := a.collect(ceilingCtx, target)

	entry := models.ReputationEntry{
		URLKey:  key,
		Signals: results,
	}

	// Advisory signals alone are not worth replacing a previous verdict.
	if entry.EvidenceCount() == 0 {
		if previous, ok := a.cache.Get(ctx, key); ok {
			a.logger.WithField("url_key", key).Warn("No authoritative provider answered, serving previous verdict")
			a.metrics.CacheResult("stale")
			previous.FromCache = true
			previous.Stale = !a.cache.IsFresh(previous, a.now())
			return previous
		}
	}

	entry.Verdict = Compose(entry.Signals, a.cfg.StrictEvidence)
	entry.Narrative = a.narrate(ceilingCtx, key, entry.Signals)

	if a.cfg.NarrativeEscalation && entry.Verdict == models.VerdictSafe {
		if opinion, ok := signals.OpinionSignal(a.caution, entry.Narrative); ok {
			entry.Signals = append(entry.Signals, opinion)
			entry.Verdict = Compose(entry.Signals, a.cfg.StrictEvidence)
		}
	}

	entry.ComputedAt = a.now().UTC()
	a.metrics.Verdict(string(entry.Verdict), a.now().Sub(start))
	a.logger.WithFields(logrus.Fields{
		"url_key":  key,
		"verdict":  entry.Verdict,
		"checked":  entry.CheckedCount(),
		"evidence": entry.EvidenceCount(),
		"signals":  len(entry.Signals),
	}).Info("URL verdict computed")

	if entry.Verdict == models.VerdictMalicious {
		a.notify(entry)
	}
	return entry
}

// collect queries every provider concurrently. The result always has one signal per
// provider, in provider order; providers still running when ceilingCtx ends are
// reported unchecked.
func (a *Aggregator) collect(ceilingCtx context.Context, target *url.URL) []models.SignalResult {
	var mu sync.Mutex
	results := make([]models.SignalResult, len(a.providers))
	for i, p := range a.providers {
		results[i] = signals.Unchecked(p.ProviderName(), detailAggregationTimeout)
		results[i].Advisory = signals.IsAdvisory(p)
	}
	if len(a.providers) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ceilingCtx)
	for i, p := range a.providers {
		g.Go(func() error {
			res := a.check(gctx, ceilingCtx, p, target)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ceilingCtx.Done():
		a.logger.WithField("ceiling", a.cfg.Ceiling).Warn("Aggregation ceiling reached")
	}

	mu.Lock()
	defer mu.Unlock()
	return slices.Clone(results)
}

// check runs one provider under its own timeout and turns any failure into an
// unchecked signal.
func (a *Aggregator) check(ctx, ceilingCtx context.Context, p signals.Provider, target *url.URL) models.SignalResult {
	name := p.ProviderName()
	pctx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
	defer cancel()

	type outcome struct {
		res models.SignalResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := p.Check(pctx, target)
		ch <- outcome{res, err}
	}()

	var o outcome
	select {
	case o = <-ch:
	case <-pctx.Done():
		o.err = pctx.Err()
	}

	var res models.SignalResult
	switch {
	case o.err != nil && ceilingCtx.Err() != nil:
		res = signals.Unchecked(name, detailAggregationTimeout)
	case errors.Is(o.err, context.DeadlineExceeded):
		res = signals.Unchecked(name, fmt.Sprintf("timeout after %s", a.cfg.ProviderTimeout))
	case o.err != nil:
		res = signals.Unchecked(name, o.err.Error())
	case o.res.Checked && !o.res.Verdict.Valid():
		res = signals.Unchecked(name, fmt.Sprintf("invalid verdict %q", o.res.Verdict))
	default:
		res = o.res
		res.Provider = name
	}
	res.Advisory = signals.IsAdvisory(p)

	if o.err != nil {
		a.logger.WithError(o.err).WithField("provider", name).Warn("Signal provider failed")
	}
	verdict := "unchecked"
	if res.Checked {
		verdict = string(res.Verdict)
	}
	a.metrics.ProviderResult(string(name), verdict)
	return res
}

// narrate asks the narrator for a summary within whatever is left of the ceiling.
// A narrator that runs out of time yields no narrative.
func (a *Aggregator) narrate(ceilingCtx context.Context, key string, results []models.SignalResult) string {
	if a.narrator == nil {
		return ""
	}
	if err := ceilingCtx.Err(); err != nil {
		a.logger.WithError(err).WithField("url_key", key).Warn("No time left to generate narrative")
		return ""
	}
	nctx, cancel := context.WithTimeout(ceilingCtx, a.cfg.ProviderTimeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		text, err := a.narrator.Narrate(nctx, key, results)
		ch <- outcome{text, err}
	}()

	var o outcome
	select {
	case o = <-ch:
	case <-nctx.Done():
		o.err = nctx.Err()
	}
	if o.err != nil {
		a.logger.WithError(o.err).WithField("url_key", key).Warn("Failed to generate narrative")
		return ""
	}
	return o.text
}

func (a *Aggregator) notify(entry models.ReputationEntry) {
	if a.notifier == nil {
		return
	}
	title, message := notifications.MaliciousAlert(entry)
	a.notifyWG.Add(1)
	go func() {
		defer a.notifyWG.Done()
		if err := a.notifier.Send(title, message); err != nil {
			a.logger.WithError(err).WithField("url_key", entry.URLKey).Error("Failed to notify malicious verdict")
		}
	}()
}
