package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithSQLite(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/silink-test.db")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	require.Equal(t, ":8080", cfg.HTTPListenAddr)
	require.Equal(t, 15*time.Second, cfg.FlutterwaveTimeout)
	require.Equal(t, "100", cfg.FundingMinimum.String())
	require.Equal(t, "500", cfg.WithdrawMinimum.String())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := Load()
	require.ErrorContains(t, err, "unsupported DATABASE_DRIVER")
}

func TestLoadRejectsBadMinimum(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("WITHDRAW_MINIMUM", "five hundred")

	_, err := Load()
	require.ErrorContains(t, err, "WITHDRAW_MINIMUM")
}
