package app_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherdb/internal/app"
	"cipherdb/internal/domain"
	"cipherdb/internal/store"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	c, err := app.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, domain.RememberLocal, c.Remember)
	assert.Equal(t, store.BackendFile, c.Backend)
	assert.Equal(t, 10*time.Second, c.Timeouts.Connect)
	assert.Equal(t, 30*time.Second, c.Timeouts.PingInterval)
	assert.Equal(t, time.Second, c.Timeouts.BackoffInitial)
	assert.Equal(t, 30*time.Second, c.Timeouts.BackoffMax)
	assert.Equal(t, "default", c.AppID)

	assert.Error(t, c.Validate(), "relay url is required")
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cipherdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relay_url: wss://relay.test/v1
app_id: notes
remember: session
backend: bolt
log_level: debug
passphrase: ignored
timeouts:
  connect: 3s
  write: 1500ms
  backoff_max: 1m
rate_limit: 5
`), 0o600))

	c, err := app.LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "wss://relay.test/v1", c.RelayURL)
	assert.Equal(t, domain.RememberSession, c.Remember)
	assert.Equal(t, store.BackendBolt, c.Backend)
	assert.Empty(t, c.Passphrase)
	assert.Equal(t, 3*time.Second, c.Timeouts.Connect)
	assert.Equal(t, 1500*time.Millisecond, c.Timeouts.Write)
	assert.Equal(t, time.Minute, c.Timeouts.BackoffMax)
	assert.Equal(t, 10*time.Second, c.Timeouts.Request)

	rc := c.RelayConfig()
	assert.Equal(t, "notes", rc.AppID)
	assert.Equal(t, 3*time.Second, rc.ConnectTimeout)
	assert.InDelta(t, 5.0, float64(rc.RateLimit), 0)
	assert.Equal(t, 1500*time.Millisecond, c.DatabaseConfig().WriteTimeout)

	var buf bytes.Buffer
	c.Logger(&buf).Debug("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base, err := app.LoadConfig("")
	require.NoError(t, err)
	base.RelayURL = "wss://relay.test"
	require.NoError(t, base.Validate())

	c := base
	c.Remember = "forever"
	assert.Error(t, c.Validate())

	c = base
	c.Backend = "sqlite"
	assert.Error(t, c.Validate())

	c = base
	c.Timeouts.BackoffMax = time.Millisecond
	assert.Error(t, c.Validate())
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeouts: [nope"), 0o600))
	_, err := app.LoadConfig(path)
	assert.Error(t, err)
}

func TestNewWireBuildsSession(t *testing.T) {
	c, err := app.LoadConfig("")
	require.NoError(t, err)
	c.Home = t.TempDir()
	c.RelayURL = "wss://relay.test"

	w, err := app.NewWire(c, nil, nil, nil)
	require.NoError(t, err)
	a := app.New(w)
	_, err = a.Databases()
	assert.Error(t, err)
	assert.NoError(t, a.Close())
}
