package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsBackendToMemory(t *testing.T) {
	path := writeConfig(t, `
input = "rel.csv"
k = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "rel.csv", cfg.Input)
	assert.Equal(t, 3, cfg.K)
}

func TestLoadRequiresDSNForMySQL(t *testing.T) {
	path := writeConfig(t, `
input = "rel.csv"
k = 3
backend = "mysql"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingInput(t *testing.T) {
	path := writeConfig(t, `k = 3`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAcceptsFullConfig(t *testing.T) {
	path := writeConfig(t, `
input = "rel.csv"
k = 4
engine = "buc"
backend = "mysql"
dsn = "user:pass@tcp(127.0.0.1:3306)/entropymine"
concurrency = 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "buc", cfg.Engine)
	assert.Equal(t, 4, cfg.Concurrency)
}
