package db

import (
	"testing"

	"pixelswap/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestDialectSelectsDriverByType(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.DBNAME = "pixelswap"

	cfg.Database.Type = "postgres"
	require.Equal(t, "postgres", Dialect(cfg).Name())

	cfg.Database.Type = "mysql"
	require.Equal(t, "mysql", Dialect(cfg).Name())

	cfg.Database.Type = "sqlite"
	require.Equal(t, "sqlite", Dialect(cfg).Name())

	cfg.Database.Type = ""
	require.Equal(t, "postgres", Dialect(cfg).Name())
}

func TestExtractDBNameFromDSN(t *testing.T) {
	require.Equal(t, "pixelswap", extractDBNameFromDSN("host=db port=5432 dbname=pixelswap sslmode=disable"))
	require.Equal(t, "shop", extractDBNameFromDSN("u:p@tcp(db:3306)/shop?parseTime=True"))
	require.Equal(t, "unknown", extractDBNameFromDSN(""))
}
