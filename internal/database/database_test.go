package database

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y0ug/hashguard/internal/database/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Discard output during tests
	return logger
}

func sampleEntry(key string, verdict models.Verdict, at time.Time) models.ReputationEntry {
	confidence := 0.9
	return models.ReputationEntry{
		URLKey:  key,
		Verdict: verdict,
		Signals: []models.SignalResult{
			{Provider: models.ProviderSafeBrowsing, Checked: true, Verdict: models.SignalClean, Confidence: &confidence},
			{Provider: models.ProviderCertificate, Checked: false, Detail: "timeout"},
		},
		Narrative:  "looks fine",
		ComputedAt: at,
		FromCache:  true,
		Stale:      true,
	}
}

func runDatabaseContract(t *testing.T, db Database) {
	ctx := context.Background()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	_, err := db.GetEntry(ctx, "https://missing.test")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, db.PutEntry(ctx, sampleEntry("https://a.test", models.VerdictSafe, at)))
	got, err := db.GetEntry(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictSafe, got.Verdict)
	assert.Equal(t, "looks fine", got.Narrative)
	assert.True(t, at.Equal(got.ComputedAt))
	require.Len(t, got.Signals, 2)
	assert.True(t, got.Signals[0].Checked)
	require.NotNil(t, got.Signals[0].Confidence)
	assert.InDelta(t, 0.9, *got.Signals[0].Confidence, 1e-9)
	assert.False(t, got.FromCache, "response-only fields must not be persisted")
	assert.False(t, got.Stale, "response-only fields must not be persisted")

	// Full replacement, never merge.
	replacement := sampleEntry("https://a.test", models.VerdictMalicious, at.Add(time.Hour))
	replacement.Signals = replacement.Signals[:1]
	replacement.Narrative = ""
	require.NoError(t, db.PutEntry(ctx, replacement))
	got, err = db.GetEntry(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMalicious, got.Verdict)
	assert.Len(t, got.Signals, 1)
	assert.Empty(t, got.Narrative)

	require.NoError(t, db.PutEntry(ctx, sampleEntry("https://b.test", models.VerdictSuspicious, at)))
	count, err := db.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, db.DeleteEntry(ctx, "https://a.test"))
	require.NoError(t, db.DeleteEntry(ctx, "https://a.test"))
	_, err = db.GetEntry(ctx, "https://a.test")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestMemoryDB(t *testing.T) {
	runDatabaseContract(t, NewMemoryDB())
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "reputation.db"), newTestLogger())
	require.NoError(t, err)
	defer db.Close(context.Background())
	runDatabaseContract(t, db)
}

func TestSQLiteDB(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "reputation.sqlite"), newTestLogger())
	require.NoError(t, err)
	defer db.Close(context.Background())
	runDatabaseContract(t, db)
}

func TestRedisDB(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	db, err := NewRedisDB(ctx, &DatabaseConfig{Type: "redis", RedisAddr: addr, RedisDB: 15})
	require.NoError(t, err)
	defer db.Close(ctx)
	require.NoError(t, db.client.FlushDB(ctx).Err())
	runDatabaseContract(t, db)
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "")
	cfg, err := LoadDatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Type)

	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", "")
	_, err = LoadDatabaseConfig()
	assert.Error(t, err)

	t.Setenv("DATABASE_TYPE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	cfg, err = LoadDatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RedisDB)

	t.Setenv("DATABASE_TYPE", "postgres")
	_, err = LoadDatabaseConfig()
	assert.Error(t, err)
}
