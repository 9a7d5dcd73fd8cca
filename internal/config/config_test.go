package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/buenosaires.csv", cfg.Source)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.LoadTimeout)
	assert.Equal(t, 2*time.Minute, cfg.FetchMaxElapsed)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "anonymous", cfg.FTPUser)
	assert.Equal(t, []string{"Mercedes, Buenos Aires", "Distrito Federal, Ciudad de Buenos Aires"}, cfg.Localities())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("MOBILITY_SOURCE", "https://example.org/ba.csv")
	t.Setenv("MOBILITY_ADDR", ":9090")
	t.Setenv("MOBILITY_LOAD_TIMEOUT", "5s")
	t.Setenv("MOBILITY_LOG_LEVEL", "debug")
	t.Setenv("MOBILITY_LOG_FORMAT", "text")
	t.Setenv("MOBILITY_DEFAULT_LOCALITIES", " Córdoba, Córdoba ;; ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/ba.csv", cfg.Source)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.LoadTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"Córdoba, Córdoba"}, cfg.Localities())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad duration", "MOBILITY_LOAD_TIMEOUT", "soon"},
		{"zero timeout", "MOBILITY_LOAD_TIMEOUT", "0s"},
		{"negative shutdown", "MOBILITY_SHUTDOWN_TIMEOUT", "-1s"},
		{"bad log format", "MOBILITY_LOG_FORMAT", "xml"},
		{"blank source", "MOBILITY_SOURCE", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MOBILITY_ADDR=:7070\nMOBILITY_LOG_LEVEL=warn\n"), 0o644))

	// Variables already set win over the file.
	t.Setenv("MOBILITY_LOG_LEVEL", "error")
	t.Setenv("MOBILITY_ADDR", "")
	os.Unsetenv("MOBILITY_ADDR")

	require.NoError(t, LoadEnvFile(path))
	t.Cleanup(func() { os.Unsetenv("MOBILITY_ADDR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadEnvFile_Missing(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadEnvFile(""))
}
