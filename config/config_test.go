package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 30*time.Second, cfg.Game.TurnDuration)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "game-events", cfg.Redis.Channel)

	rules := cfg.Game.Rules()
	assert.Equal(t, 2, rules.MinPlayers)
	assert.Equal(t, 4, rules.MaxPlayers)
	assert.Equal(t, 7, rules.HandSize)
	assert.Equal(t, 23.0, rules.Bounds.Width)
}

func TestFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("game:\n  turn_duration: 5s\n  max_players: 3\nredis:\n  enabled: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("DOMINO_AUTH_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Game.TurnDuration)
	assert.Equal(t, 3, cfg.Game.MaxPlayers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("game:\n  max_players: 5\n"), 0o600))

	_, err := LoadConfig(dir)
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  server_id: \"eu:1\"\n"), 0o600))
	_, err = LoadConfig(dir)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "domino", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=domino sslmode=disable", p.DSN())
}
