//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/datastore"
)

// startMySQL launches a disposable MySQL server and returns its settings.
func startMySQL(t *testing.T) conf.MySQLSettings {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	req := tc.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "imagelens",
			"MYSQL_USER":          "lens",
			"MYSQL_PASSWORD":      "secret",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("3306/tcp"),
			wait.ForLog("ready for connections").WithOccurrence(2),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return conf.MySQLSettings{
		Host:     host,
		Port:     port.Int(),
		Username: "lens",
		Password: "secret",
		Database: "imagelens",
	}
}

func TestMySQLBackendPruning(t *testing.T) {
	settings := startMySQL(t)

	m, err := datastore.NewMySQLManager(&settings)
	require.NoError(t, err)
	defer m.Close()

	clock := newClock()
	c, err := New(t.Context(), m, Options{MaxEntries: 12, Now: clock.Now})
	require.NoError(t, err)

	for i := range 13 {
		h := fmt.Sprintf("h%02d", i)
		require.NoError(t, c.Put(t.Context(), h, sampleResult(h, h)))
		clock.Advance(time.Second)
	}

	n, err := c.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, ok, err := c.Get(t.Context(), "h12")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := c.Stats(t.Context())
	require.NoError(t, err)
	assert.Positive(t, stats.SizeBytes)
}
