package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvStr(t *testing.T) {
	t.Setenv("CHAT_TEST_STR", "value")
	require.Equal(t, "value", envStr("CHAT_TEST_STR", "fallback"))
	require.Equal(t, "fallback", envStr("CHAT_TEST_STR_MISSING", "fallback"))
}

func TestEnvInt(t *testing.T) {
	t.Setenv("CHAT_TEST_INT", "42")
	require.Equal(t, 42, envInt("CHAT_TEST_INT", 7))

	t.Setenv("CHAT_TEST_INT", "not-a-number")
	require.Equal(t, 7, envInt("CHAT_TEST_INT", 7))
	require.Equal(t, 7, envInt("CHAT_TEST_INT_MISSING", 7))
}

func TestDBMaxConnections_Default(t *testing.T) {
	var cfg Config
	require.Equal(t, 20, cfg.DBMaxConnections())

	cfg.Database.MaxConnections = 50
	require.Equal(t, 50, cfg.DBMaxConnections())
}
