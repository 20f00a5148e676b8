package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, args ...string) Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(fs)
	require.NoError(t, fs.Parse(args))
	v, err := newViper(fs)
	require.NoError(t, err)
	cfg, err := configFrom(v)
	require.NoError(t, err)
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := loadConfig(t)
	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, "uploads", cfg.UploadBase)
	assert.True(t, cfg.AutoMigrate)
	assert.False(t, cfg.NumericRanking)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 25_000_000, cfg.MaxImagePixels)
	assert.Equal(t, []string{"kor", "eng"}, cfg.OCRLanguages)
}

func TestConfigLegacyEnv(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://legacy")
	t.Setenv("UPLOAD_BASE", "/srv/uploads")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	cfg := loadConfig(t)
	assert.Equal(t, "postgres://legacy", cfg.DSN)
	assert.Equal(t, "/srv/uploads", cfg.UploadBase)
	assert.False(t, cfg.AutoMigrate)
}

func TestConfigPrecedence(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://legacy")
	t.Setenv("LAPBOARD_DB_DSN", "postgres://prefixed")
	t.Setenv("LAPBOARD_RANKING_NUMERIC", "true")
	cfg := loadConfig(t)
	assert.Equal(t, "postgres://prefixed", cfg.DSN)
	assert.True(t, cfg.NumericRanking)

	cfg = loadConfig(t, "--db-dsn", "postgres://flag", "--listen", ":8081")
	assert.Equal(t, "postgres://flag", cfg.DSN)
	assert.Equal(t, ":8081", cfg.Listen)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lapboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("public-url: https://cdn.example.com/laps\nworkers: 0\n"), 0o644))
	cfg := loadConfig(t, "--config", path)
	assert.Equal(t, "https://cdn.example.com/laps", cfg.PublicURL)
	assert.Equal(t, 1, cfg.Workers)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nLAPBOARD_TEST_A=from-file\nLAPBOARD_TEST_B=from-file\n"), 0o644))
	t.Setenv("LAPBOARD_TEST_B", "already-set")
	t.Cleanup(func() { _ = os.Unsetenv("LAPBOARD_TEST_A") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("LAPBOARD_TEST_A"))
	assert.Equal(t, "already-set", os.Getenv("LAPBOARD_TEST_B"))

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
