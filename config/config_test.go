package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("CONFIG_PATH", path)
}

func Test_LoadConfig_Applies_Defaults(t *testing.T) {
	req := require.New(t)
	writeConfig(t, `
http:
  addr: ":8080"
auth:
  jwtSecret: "secret"
`)

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal(":8080", cfg.HTTP.Addr)
	req.Equal("badger", cfg.Store.Backend)
	req.Equal("./data/rooms", cfg.Store.Path)
	req.Equal("room-service", cfg.Logging.Service)
	req.Equal(10, cfg.Room.DefaultMaxParticipants)
	req.Equal(4000, cfg.Room.MaxMessageLen)
	req.Equal(64, cfg.WS.SendBuffer)
	req.Equal(15*time.Second, cfg.PingInterval())
}

func Test_LoadConfig_Requires_Addr_And_Secret(t *testing.T) {
	req := require.New(t)

	writeConfig(t, `
auth:
  jwtSecret: "secret"
`)
	_, err := LoadConfig()
	req.Error(err)

	writeConfig(t, `
http:
  addr: ":8080"
`)
	_, err = LoadConfig()
	req.Error(err)
}

func Test_LoadConfig_Postgres_Needs_DSN(t *testing.T) {
	req := require.New(t)
	writeConfig(t, `
http:
  addr: ":8080"
auth:
  jwtSecret: "secret"
store:
  backend: postgres
`)

	_, err := LoadConfig()
	req.Error(err)
}

func Test_LoadConfig_Rejects_Unknown_Backend(t *testing.T) {
	req := require.New(t)
	writeConfig(t, `
http:
  addr: ":8080"
auth:
  jwtSecret: "secret"
store:
  backend: cassandra
`)

	_, err := LoadConfig()
	req.Error(err)
}

func Test_PingInterval_Parses_Custom_Value(t *testing.T) {
	req := require.New(t)
	writeConfig(t, `
http:
  addr: ":8080"
auth:
  jwtSecret: "secret"
ws:
  pingEvery: "3s"
`)

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal(3*time.Second, cfg.PingInterval())
}
