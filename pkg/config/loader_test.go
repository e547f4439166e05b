package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
mode: ${TEST_CHAT_MODE}
sync:
  page_size: 20
  poll_interval: 3s
  poll_when_healthy: true
realtime:
  kind: websocket
  websocket_url: ws://chat.example:8081/ws
minio:
  bucket: attachments
  presign_expiry: 10m
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_client.yaml"), []byte(testYAML), 0o600))
	t.Setenv("TEST_CHAT_MODE", "remote")

	cfg, err := LoadConfig[Client]("chat_client", dir)
	require.NoError(t, err)

	assert.Equal(t, ModeRemote, cfg.Mode)
	assert.Equal(t, RealtimeWebsocket, cfg.Realtime.Kind)
	assert.Equal(t, "ws://chat.example:8081/ws", cfg.Realtime.WebsocketURL)
	assert.Equal(t, 10*time.Minute, cfg.MinIO.PresignExpiry)

	sc := cfg.Sync.WithDefaults()
	assert.Equal(t, 20, sc.PageSize)
	assert.Equal(t, 10, sc.PollLimit)
	assert.Equal(t, 3*time.Second, sc.PollInterval)
	assert.Equal(t, 5*time.Second, sc.GracePeriod)
	assert.True(t, sc.PollWhenHealthy)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig[Client]("does_not_exist", t.TempDir())
	assert.Error(t, err)
}

func TestGetRedisSetting(t *testing.T) {
	t.Setenv("REDIS_SENTINEL1_IP", "10.0.0.1")
	t.Setenv("REDIS_SENTINEL1_PORT", "26379")
	t.Setenv("REDIS_MASTER_NAME", "chatmaster")

	master, addrs := GetRedisSetting()
	assert.Equal(t, "chatmaster", master)
	assert.Contains(t, addrs, "10.0.0.1:26379")
}
