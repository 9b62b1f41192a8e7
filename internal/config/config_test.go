package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Budget.Total)
	assert.Equal(t, 200, cfg.Budget.TrafficDrop)
	assert.Equal(t, 100, cfg.Budget.FixVerification)
	assert.Equal(t, 100, cfg.Budget.NewURL)
	assert.Equal(t, 100, cfg.Budget.Rotation)
	assert.InDelta(t, 10, cfg.Detect.MinImpressions, 0.001)
	assert.InDelta(t, 50, cfg.Detect.DropThreshold, 0.001)
	assert.Equal(t, 8, cfg.Detect.HistoryDays)
	assert.Equal(t, 3, cfg.Detect.MinHistoryDays)
	assert.Equal(t, 2, cfg.Detect.NewURLWindowDays)
	assert.Equal(t, 7, cfg.Detect.RecheckDays)
	assert.Equal(t, 7, cfg.Detect.FixWindowDays)
	assert.Equal(t, 100, cfg.Detect.FixPriority)
	assert.InDelta(t, 100, cfg.Detect.RotationDivisor, 0.001)
	assert.Equal(t, 500, cfg.Inspect.DelayMs)
	assert.Equal(t, 2, cfg.Ingest.RetryAttempts)
	assert.Equal(t, "https://searchconsole.googleapis.com/v1", cfg.GSC.InspectBaseURL)
	assert.Equal(t, "seo-monitor", cfg.Temporal.TaskQueue)
	assert.Equal(t, "0 6 * * *", cfg.Temporal.Cron)
	assert.Equal(t, "seo_monitor_sync", cfg.Metrics.Job)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
business: acme
site: sc-domain:acme.com
store:
  driver: sqlite
  database_url: acme.db
budget:
  total: 50
  traffic_drop: 20
log:
  level: debug
  format: console
inspect:
  delay_ms: 1000
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Business)
	assert.Equal(t, "sc-domain:acme.com", cfg.Site)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "acme.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 50, cfg.Budget.Total)
	assert.Equal(t, 20, cfg.Budget.TrafficDrop)
	assert.Equal(t, 100, cfg.Budget.NewURL, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Inspect.DelayMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("business: from-file\n"), 0o644))
	t.Setenv("SEOMON_BUSINESS", "from-env")
	t.Setenv("SEOMON_BUDGET_TOTAL", "42")
	t.Setenv("SEOMON_GSC_REFRESH_TOKEN", "rt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Business)
	assert.Equal(t, 42, cfg.Budget.Total)
	assert.Equal(t, "rt", cfg.GSC.RefreshToken)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("budget: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestValidate(t *testing.T) {
	valid := Config{Business: "acme", Budget: BudgetConfig{Total: 10, TrafficDrop: 5}}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing business", Config{Budget: BudgetConfig{Total: 10}}, "business is required"},
		{"zero budget", Config{Business: "acme"}, "budget.total must be positive"},
		{"negative sub-budget", Config{Business: "acme", Budget: BudgetConfig{Total: 10, Rotation: -1}}, "budget.rotation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
