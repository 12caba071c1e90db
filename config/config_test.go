package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EMAIL_SENDER", "robot@example.com")
	t.Setenv("EMAIL_PASSWORD", "secret")
	t.Setenv("DB_USER", "flows")
	t.Setenv("DB_PASSWORD", "p@ss")
	t.Setenv("PORTAL_PROFILE", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.Browser.DownloadTimeout)
	assert.Equal(t, "ECOTRADE", cfg.WholesalerTag())
	assert.Nil(t, cfg.ForceDate)
	assert.Equal(t, "xml", cfg.Portal.SearchQuery)
	assert.Contains(t, cfg.Database.DSN(), "parseTime=true")
	assert.Contains(t, cfg.Database.DSN(), "flows:p@ss@tcp(localhost:3306)/automation")
}

func TestLoad_MissingMailCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EMAIL_SENDER", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sender")
}

func TestLoad_SQLiteNeedsNoCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "flows.db", cfg.Database.DSN())
}

func TestLoad_ForceDate(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FORCE_DATE", "14/05/2025")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.ForceDate)
	assert.Equal(t, "2025-05-14", cfg.ForceDate.Format("2006-01-02"))

	t.Setenv("FORCE_DATE", "2025-05-14")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_PacingBoundsValidated(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PACE_MIN_MS", "2000")
	t.Setenv("PACE_MAX_MS", "100")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxMS")
}

func TestLoadPortalProfile_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	data := []byte(`
search_query: zip
measures:
  Gas:
    downloaded_table: "#custom table"
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	p, err := LoadPortalProfile(path)
	require.NoError(t, err)

	assert.Equal(t, "zip", p.SearchQuery)
	assert.Equal(t, "#codcliente", p.UsernameField)

	gas, err := p.Measure("Gas")
	require.NoError(t, err)
	assert.Equal(t, "#custom table", gas.DownloadedTable)
	assert.Equal(t, "scaricaGas('/');", gas.AvailableTrigger)

	_, err = p.Measure("Water")
	assert.Error(t, err)
}

func TestMaskConnectionString(t *testing.T) {
	got := maskConnectionString("postgres://flows:hunter2@db:5432/automation")
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "flows:")
	assert.Contains(t, got, "@db:5432/automation")
}
