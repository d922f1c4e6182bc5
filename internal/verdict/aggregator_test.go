package verdict

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/y0ug/hashguard/internal/database"
	"github.com/y0ug/hashguard/internal/database/models"
	"github.com/y0ug/hashguard/internal/reputation"
	"github.com/y0ug/hashguard/internal/signals"
)

type fakeProvider struct {
	name    models.Provider
	verdict models.SignalVerdict
	delay   time.Duration
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) ProviderName() models.Provider { return f.name }

func (f *fakeProvider) Check(ctx context.Context, _ *url.URL) (models.SignalResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.SignalResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return models.SignalResult{}, f.err
	}
	return models.SignalResult{Provider: f.name, Checked: true, Verdict: f.verdict}, nil
}

type fakeNarrator struct {
	text string
}

func (f *fakeNarrator) Narrate(context.Context, string, []models.SignalResult) (string, error) {
	return f.text, nil
}

type slowNarrator struct {
	delay time.Duration
}

func (f *slowNarrator) Narrate(ctx context.Context, _ string, _ []models.SignalResult) (string, error) {
	select {
	case <-time.After(f.delay):
		return "too late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeSender struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeSender) Send(title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func newTestAggregator(cfg Config, providers ...signals.Provider) (*Aggregator, *reputation.Cache) {
	logger := newTestLogger()
	cache := reputation.NewCache(database.NewMemoryDB(), time.Hour, logger)
	if cfg.ProviderTimeout == 0 {
		cfg.ProviderTimeout = time.Second
	}
	if cfg.Ceiling == 0 {
		cfg.Ceiling = 2 * time.Second
	}
	caution, _ := signals.NewKeywordMatcher(signals.DefaultCautionWords)
	return New(cache, &signals.Set{Providers: providers, Caution: caution}, &cfg, logger), cache
}

func signalFor(t *testing.T, entry models.ReputationEntry, p models.Provider) models.SignalResult {
	t.Helper()
	for _, s := range entry.Signals {
		if s.Provider == p {
			return s
		}
	}
	t.Fatalf("no signal for %s", p)
	return models.SignalResult{}
}

func TestEvaluateAllCleanIsSafeThenCached(t *testing.T) {
	sb := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean}
	cert := &fakeProvider{name: models.ProviderCertificate, verdict: models.SignalClean}
	agg, _ := newTestAggregator(Config{}, sb, cert)
	ctx := context.Background()

	entry, err := agg.Evaluate(ctx, "https://example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSafe, entry.Verdict)
	assert.False(t, entry.FromCache)
	assert.Equal(t, "https://example.com", entry.URLKey)
	assert.Len(t, entry.Signals, 2)
	assert.False(t, entry.ComputedAt.IsZero())

	again, err := agg.Evaluate(ctx, "HTTPS://EXAMPLE.COM/", Options{})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, models.VerdictSafe, again.Verdict)
	assert.Equal(t, int32(1), sb.calls.Load())
	assert.Equal(t, int32(1), cert.calls.Load())
}

func TestEvaluateMaliciousSignalWinsAndNotifies(t *testing.T) {
	sb := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalMalicious}
	cert := &fakeProvider{name: models.ProviderCertificate, verdict: models.SignalClean}
	agg, _ := newTestAggregator(Config{}, sb, cert)
	sender := &fakeSender{}
	agg.SetNotifier(sender)

	entry, err := agg.Evaluate(context.Background(), "https://evil.test/login", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMalicious, entry.Verdict)

	agg.Close()
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, []string{"Malicious URL detected"}, sender.titles)
}

func TestEvaluateTimedOutProviderWithCleanProvider(t *testing.T) {
	for _, tt := range []struct {
		strict bool
		want   models.Verdict
	}{
		{false, models.VerdictSafe},
		{true, models.VerdictSuspicious},
	} {
		sb := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean}
		cert := &fakeProvider{name: models.ProviderCertificate, verdict: models.SignalClean, delay: time.Second}
		agg, _ := newTestAggregator(Config{ProviderTimeout: 50 * time.Millisecond, StrictEvidence: tt.strict}, sb, cert)

		entry, err := agg.Evaluate(context.Background(), "https://example.com", Options{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, entry.Verdict, "strict=%v", tt.strict)

		s := signalFor(t, entry, models.ProviderCertificate)
		assert.False(t, s.Checked)
		assert.Contains(t, s.Detail, "timeout")
		assert.True(t, signalFor(t, entry, models.ProviderSafeBrowsing).Checked)
	}
}

func TestEvaluateProviderErrorIsUnchecked(t *testing.T) {
	sb := &fakeProvider{name: models.ProviderSafeBrowsing, err: errors.New("quota exceeded")}
	cert := &fakeProvider{name: models.ProviderCertificate, verdict: models.SignalSuspicious}
	agg, _ := newTestAggregator(Config{}, sb, cert)

	entry, err := agg.Evaluate(context.Background(), "http://example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSuspicious, entry.Verdict)

	s := signalFor(t, entry, models.ProviderSafeBrowsing)
	assert.False(t, s.Checked)
	assert.Equal(t, "quota exceeded", s.Detail)
}

func TestEvaluateCeilingBoundsComputation(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := &fakeProvider{name: models.ProviderDNSBL, verdict: models.SignalClean, delay: 5 * time.Second}
	fast := &fakeProvider{name: models.ProviderHeuristic, verdict: models.SignalClean}
	agg, _ := newTestAggregator(Config{ProviderTimeout: 10 * time.Second, Ceiling: 100 * time.Millisecond}, slow, fast)

	start := time.Now()
	entry, err := agg.Evaluate(context.Background(), "https://example.com", Options{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	s := signalFor(t, entry, models.ProviderDNSBL)
	assert.False(t, s.Checked)
	assert.Equal(t, detailAggregationTimeout, s.Detail)
	assert.True(t, signalFor(t, entry, models.ProviderHeuristic).Checked)
	assert.Equal(t, models.VerdictSafe, entry.Verdict)
}

func TestEvaluateZeroProvidersIsSuspicious(t *testing.T) {
	agg, _ := newTestAggregator(Config{})

	entry, err := agg.Evaluate(context.Background(), "https://example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSuspicious, entry.Verdict)
	assert.Empty(t, entry.Signals)
}

func TestEvaluateInvalidURL(t *testing.T) {
	p := &fakeProvider{name: models.ProviderHeuristic, verdict: models.SignalClean}
	agg, _ := newTestAggregator(Config{}, p)

	_, err := agg.Evaluate(context.Background(), "ftp://example.com", Options{})
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestEvaluateSingleFlightPerURL(t *testing.T) {
	defer goleak.VerifyNone(t)

	sb := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean, delay: 100 * time.Millisecond}
	cert := &fakeProvider{name: models.ProviderCertificate, verdict: models.SignalClean, delay: 100 * time.Millisecond}
	agg, _ := newTestAggregator(Config{}, sb, cert)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]models.ReputationEntry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := agg.Evaluate(context.Background(), "https://popular.test/", Options{})
			assert.NoError(t, err)
			results[i] = entry
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), sb.calls.Load())
	assert.Equal(t, int32(1), cert.calls.Load())
	for _, r := range results {
		assert.Equal(t, models.VerdictSafe, r.Verdict)
		assert.True(t, results[0].ComputedAt.Equal(r.ComputedAt))
	}
}

func TestEvaluateRecomputesOutsideFreshnessWindow(t *testing.T) {
	p := &fakeProvider{name: models.ProviderHeuristic, verdict: models.SignalClean}
	agg, cache := newTestAggregator(Config{}, p)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "https://old.test", models.ReputationEntry{
		Verdict:    models.VerdictMalicious,
		ComputedAt: time.Now().Add(-2 * time.Hour),
	}))

	entry, err := agg.Evaluate(ctx, "https://old.test", Options{})
	require.NoError(t, err)
	assert.False(t, entry.FromCache)
	assert.Equal(t, models.VerdictSafe, entry.Verdict)
	assert.Equal(t, int32(1), p.calls.Load())

	stored, ok := cache.Get(ctx, "https://old.test")
	require.True(t, ok)
	assert.Equal(t, models.VerdictSafe, stored.Verdict)
}

func TestEvaluateForceRecheckBypassesFreshEntry(t *testing.T) {
	p := &fakeProvider{name: models.ProviderHeuristic, verdict: models.SignalClean}
	agg, _ := newTestAggregator(Config{}, p)
	ctx := context.Background()

	_, err := agg.Evaluate(ctx, "https://example.com", Options{})
	require.NoError(t, err)
	entry, err := agg.Evaluate(ctx, "https://example.com", Options{ForceRecheck: true})
	require.NoError(t, err)
	assert.False(t, entry.FromCache)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestEvaluateServesStaleEntryWhenNothingAnswers(t *testing.T) {
	p := &fakeProvider{name: models.ProviderSafeBrowsing, err: errors.New("outage")}
	agg, cache := newTestAggregator(Config{}, p)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour).UTC()
	require.NoError(t, cache.Put(ctx, "https://known.test", models.ReputationEntry{
		Verdict:    models.VerdictMalicious,
		ComputedAt: old,
	}))

	entry, err := agg.Evaluate(ctx, "https://known.test", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMalicious, entry.Verdict)
	assert.True(t, entry.FromCache)
	assert.True(t, entry.Stale)

	stored, ok := cache.Get(ctx, "https://known.test")
	require.True(t, ok)
	assert.True(t, old.Equal(stored.ComputedAt), "stale entry must not be overwritten")
}

func TestEvaluateNothingAnswersWithoutHistoryIsSuspicious(t *testing.T) {
	p := &fakeProvider{name: models.ProviderSafeBrowsing, err: errors.New("outage")}
	agg, _ := newTestAggregator(Config{}, p)

	entry, err := agg.Evaluate(context.Background(), "https://new.test", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSuspicious, entry.Verdict)
	assert.False(t, entry.FromCache)
}

func TestEvaluateNarrative(t *testing.T) {
	for _, escalate := range []bool{false, true} {
		p := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean}
		agg, _ := newTestAggregator(Config{NarrativeEscalation: escalate}, p)
		agg.narrator = &fakeNarrator{text: "Proceed with caution, the domain looks suspicious."}

		entry, err := agg.Evaluate(context.Background(), "https://example.com", Options{})
		require.NoError(t, err)
		assert.Equal(t, "Proceed with caution, the domain looks suspicious.", entry.Narrative)
		if escalate {
			assert.Equal(t, models.VerdictSuspicious, entry.Verdict)
			assert.Equal(t, models.ProviderOpinion, entry.Signals[len(entry.Signals)-1].Provider)
		} else {
			assert.Equal(t, models.VerdictSafe, entry.Verdict)
			assert.Len(t, entry.Signals, 1)
		}
	}
}

func TestEvaluateCallerCancellationLeavesComputationRunning(t *testing.T) {
	p := &fakeProvider{name: models.ProviderHeuristic, verdict: models.SignalClean, delay: 100 * time.Millisecond}
	agg, cache := newTestAggregator(Config{}, p)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := agg.Evaluate(ctx, "https://example.com", Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(context.Background(), "https://example.com")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("URL_FRESHNESS_DAYS", "")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "abc")
	t.Setenv("AGGREGATION_CEILING_SECONDS", "30")
	t.Setenv("STRICT_EVIDENCE", "true")
	t.Setenv("NARRATIVE_ESCALATION", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, reputation.DefaultFreshnessWindow, cfg.FreshnessWindow)
	assert.Equal(t, DefaultProviderTimeout, cfg.ProviderTimeout)
	assert.Equal(t, 30*time.Second, cfg.Ceiling)
	assert.True(t, cfg.StrictEvidence)
	assert.False(t, cfg.NarrativeEscalation)
}

func TestEvaluateCeilingBoundsNarrative(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean}
	agg, _ := newTestAggregator(Config{ProviderTimeout: 5 * time.Second, Ceiling: 200 * time.Millisecond}, p)
	agg.narrator = &slowNarrator{delay: 3 * time.Second}

	start := time.Now()
	entry, err := agg.Evaluate(context.Background(), "https://example.com", Options{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, entry.Narrative)
	assert.Equal(t, models.VerdictSafe, entry.Verdict)
	assert.False(t, entry.FromCache)
}

func TestEvaluateAdvisorySignalsDoNotReplacePreviousVerdict(t *testing.T) {
	heuristic, err := signals.NewHeuristicChecker(nil)
	require.NoError(t, err)
	sb := &fakeProvider{name: models.ProviderSafeBrowsing, err: errors.New("outage")}
	agg, cache := newTestAggregator(Config{}, sb, heuristic)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour).UTC()
	require.NoError(t, cache.Put(ctx, "https://known.test", models.ReputationEntry{
		Verdict:    models.VerdictMalicious,
		ComputedAt: old,
	}))

	entry, err := agg.Evaluate(ctx, "https://known.test", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMalicious, entry.Verdict)
	assert.True(t, entry.FromCache)
	assert.True(t, entry.Stale)

	fresh, err := agg.Evaluate(ctx, "https://unknown.test", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSuspicious, fresh.Verdict)
	h := signalFor(t, fresh, models.ProviderHeuristic)
	assert.True(t, h.Checked)
	assert.True(t, h.Advisory)
	assert.Equal(t, models.SignalClean, h.Verdict)
}

func TestEvaluateForceRecheckDoesNotJoinRegularComputation(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean, delay: 300 * time.Millisecond}
	agg, _ := newTestAggregator(Config{}, p)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := agg.Evaluate(ctx, "https://example.com", Options{})
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	entry, err := agg.Evaluate(ctx, "https://example.com", Options{ForceRecheck: true})
	require.NoError(t, err)
	assert.False(t, entry.FromCache)
	assert.Equal(t, int32(2), p.calls.Load())
	<-done
}

func TestForget(t *testing.T) {
	p := &fakeProvider{name: models.ProviderSafeBrowsing, verdict: models.SignalClean}
	agg, cache := newTestAggregator(Config{}, p)
	ctx := context.Background()

	_, err := agg.Evaluate(ctx, "https://example.com/", Options{})
	require.NoError(t, err)

	key, err := agg.Forget(ctx, "HTTPS://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", key)
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	_, err = agg.Forget(ctx, "ftp://example.com")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
