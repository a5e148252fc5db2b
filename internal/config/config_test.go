package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
cameras:
  - id: cam-a
    url: rtsp://example/a
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.FreshnessBound)
	assert.Equal(t, float32(0.75), cfg.ReID.ReIDThreshold)
	assert.Equal(t, 3, cfg.Tracker.MinHits)
	assert.Equal(t, 15, cfg.Cameras[0].FPS)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, `
totally_unknown_key: true
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PT_SERVER_PORT", "9090")
	t.Setenv("PT_DETECTOR_DEVICE", "cuda:0")

	path := writeTempConfig(t, `cameras: []`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "cuda:0", cfg.Detector.Device)
}

func TestPrimaryCameraOptional(t *testing.T) {
	path := writeTempConfig(t, `cameras: []`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.ReID.PrimaryCamera)
}
