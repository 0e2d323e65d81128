package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4010, cfg.Port)
	assert.Equal(t, 4, cfg.RelayCapacity)
	assert.Equal(t, int64(4<<20), cfg.MaxChunkBytes)
	assert.Equal(t, uint64(8<<30), cfg.MaxDeclaredBytes)
	assert.Equal(t, 10*time.Second, cfg.ClaimWait.Duration)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval.Duration)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filet.toml")
	content := `
port = 9000
relay_capacity = 8
claim_wait = "2s"
idle_claimed = "15s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 8, cfg.RelayCapacity)
	assert.Equal(t, 2*time.Second, cfg.ClaimWait.Duration)
	assert.Equal(t, 15*time.Second, cfg.IdleClaimed.Duration)
	// Неуказанные поля остаются по умолчанию
	assert.Equal(t, int64(4<<20), cfg.MaxChunkBytes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/filet.toml")
	assert.Error(t, err)
}

func TestEnvPortOverride(t *testing.T) {
	t.Setenv("PORT", "5123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5123, cfg.Port)
}

func TestEnvPortInvalid(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RelayCapacity = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxChunkBytes = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SweepInterval.Duration = 0
	assert.Error(t, cfg.Validate())
}

func TestLimitsMapping(t *testing.T) {
	cfg := Default()
	cfg.RelayCapacity = 16
	cfg.MaxChunkBytes = 1 << 20

	limits := cfg.Limits()
	assert.Equal(t, 16, limits.RelayCapacity)
	assert.Equal(t, int64(1<<20), limits.MaxChunkBytes)
	assert.Equal(t, 1024, limits.MaxFilenameBytes)

	timeouts := cfg.Timeouts()
	assert.Equal(t, cfg.IdleStreaming.Duration, timeouts.IdleStreaming)
}
