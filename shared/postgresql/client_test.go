package postgresql

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "localhost", Port: 5432, User: "postgres", Password: "secret", Database: "exams_db", SSLMode: "require"}
	assert.Equal(t, "host=localhost port=5432 user=postgres password=secret dbname=exams_db sslmode=require", cfg.DSN())

	cfg.SSLMode = ""
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 1, User: "postgres", Password: "postgres", Database: "exams_db"}

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to PostgreSQL")
}
