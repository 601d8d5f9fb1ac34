package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/linkup-backend/internal/config"
)

func TestDSN(t *testing.T) {
	cfg := config.Config{DBUser: "postgres", DBPass: "secret", DBName: "linkup", DBHost: "localhost"}
	require.Equal(t, "host=localhost user=postgres password=secret dbname=linkup port=5432 sslmode=disable", DSN(cfg))

	cfg.InstanceConnectionName = "proj:region:db"
	require.Equal(t, "host=/cloudsql/proj:region:db user=postgres password=secret dbname=linkup sslmode=disable", DSN(cfg))
}
