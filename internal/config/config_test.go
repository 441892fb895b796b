package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "missing.yaml")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.Solver.TimeBudget)
	assert.Equal(t, 25, cfg.Solver.MaxVehicles)
	assert.Equal(t, 33.85, cfg.Solver.OriginLat)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
solver:
  time_budget: 5s
  workers: 3
  spread_fleet: true
  speed_km_per_min: 0.5
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RATE_BURST=42\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RATE_BURST") })
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SOLVER_WORKERS", "4")
	t.Setenv("SOLVER_TIME_BUDGET", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 4, cfg.Solver.Workers)
	assert.Equal(t, 12*time.Second, cfg.Solver.TimeBudget)
	assert.True(t, cfg.Solver.SpreadFleet)
	assert.Equal(t, 0.5, cfg.Solver.SpeedKmPerMin)
	assert.Equal(t, 42, cfg.RateBurst)
	assert.Equal(t, int64(1000), cfg.Solver.DispatchCost)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "missing.yaml")
	t.Setenv("SOLVER_METAHEURISTIC", "annealing")
	t.Setenv("SOLVER_MAX_VEHICLES", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metaheuristic")
	assert.Contains(t, err.Error(), "max_vehicles")
}

func TestGetEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_DUR", "1m")
	assert.Equal(t, 7, GetEnvAsInt("X_INT", 7))
	assert.True(t, GetEnvAsBool("X_BOOL", true))
	assert.Equal(t, time.Minute, GetEnvAsDuration("X_DUR", time.Second))
	assert.Equal(t, 1.5, GetEnvAsFloat("X_UNSET", 1.5))
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "text"
	log := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestLoadAuthAndWebhook(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "missing.yaml")
	t.Setenv("AUTH_MODE", "hmac")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hmac_secret")

	t.Setenv("AUTH_HMAC_SECRET", "s3cret")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hmac", cfg.Auth.Mode)
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
}
