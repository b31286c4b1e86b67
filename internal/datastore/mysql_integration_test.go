// mysql_integration_test.go: exercises the MySQL backend against a real
// server via testcontainers. Set FORESIGHT_TEST_MYSQL=1 to run; skipped
// otherwise so the suite stays runnable without Docker.
package datastore

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	mysqlcontainer "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/foresight-go/internal/conf"
)

func TestMySQLStorePromoteRoundTrip(t *testing.T) {
	if os.Getenv("FORESIGHT_TEST_MYSQL") == "" {
		t.Skip("set FORESIGHT_TEST_MYSQL=1 to run MySQL integration tests")
	}
	if testing.Short() {
		t.Skip("skipping MySQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 3*time.Minute)
	defer cancel()

	ctr, err := mysqlcontainer.Run(ctx, "mysql:8.0",
		mysqlcontainer.WithDatabase("foresight"),
		mysqlcontainer.WithUsername("foresight"),
		mysqlcontainer.WithPassword("secret"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(ctr))
	})

	dsn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	parsed, err := gosqlmysql.ParseDSN(dsn)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(parsed.Addr)
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Database.MySQL.Enabled = true
	settings.Database.MySQL.Username = "foresight"
	settings.Database.MySQL.Password = "secret"
	settings.Database.MySQL.Database = "foresight"
	settings.Database.MySQL.Host = host
	settings.Database.MySQL.Port = port

	store := &MySQLStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	require.NoError(t, store.Ping())

	require.NoError(t, store.PromoteModel("TANK_LEVEL_01", &ModelRecord{Kind: "seasonal-regression", MAE: 0.2}))
	require.NoError(t, store.PromoteModel("TANK_LEVEL_01", &ModelRecord{Kind: "additive-decomposition", MAE: 0.15}))

	active, err := store.GetActiveModel("TANK_LEVEL_01")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Version)

	history, err := store.ModelHistory("TANK_LEVEL_01", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[1].Active)
}
