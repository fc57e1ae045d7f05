//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/arwahdevops/dbtyper/internal/db"
	"github.com/arwahdevops/dbtyper/internal/logger"
)

const (
	postgresImage = "postgres:13-alpine"
	mysqlImage    = "mysql:8.0"
)

// TestDBInstance menyimpan detail instance database untuk test.
type TestDBInstance struct {
	Container testcontainers.Container
	Dialect   string
	DSN       string
	Conn      *db.Connector
	Host      string
	Port      nat.Port
}

type containerSpec struct {
	dialect string
	image   string
	port    nat.Port
	env     map[string]string
	wait    wait.Strategy
	dsn     func(host string, port nat.Port) string
}

var postgresSpec = containerSpec{
	dialect: "postgres",
	image:   postgresImage,
	port:    "5432/tcp",
	env: map[string]string{
		"POSTGRES_DB":       "warehouse",
		"POSTGRES_USER":     "typer",
		"POSTGRES_PASSWORD": "typerpass",
	},
	wait: wait.ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(60 * time.Second),
	dsn: func(host string, port nat.Port) string {
		return fmt.Sprintf("host=%s port=%s user=typer password=typerpass dbname=warehouse sslmode=disable connect_timeout=10 TimeZone=UTC",
			host, port.Port())
	},
}

// root, karena setiap namespace di MySQL adalah database tersendiri
var mysqlSpec = containerSpec{
	dialect: "mysql",
	image:   mysqlImage,
	port:    "3306/tcp",
	env: map[string]string{
		"MYSQL_DATABASE":      "warehouse",
		"MYSQL_ROOT_PASSWORD": "r00tpass",
	},
	wait: wait.ForListeningPort("3306/tcp").WithStartupTimeout(120 * time.Second),
	dsn: func(host string, port nat.Port) string {
		return fmt.Sprintf("root:r00tpass@tcp(%s:%s)/warehouse?charset=utf8mb4&parseTime=True&loc=UTC&time_zone=%s&timeout=20s",
			host, port.Port(), url.QueryEscape("'+00:00'"))
	},
}

// startContainer starts the database image and returns a pinged connector. The
// container is terminated when the test ends.
func startContainer(ctx context.Context, t *testing.T, spec containerSpec) *TestDBInstance {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			ExposedPorts: []string{string(spec.port)},
			Env:          spec.env,
			WaitingFor:   spec.wait,
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start %s container", spec.dialect)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate %s container: %v", spec.dialect, err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, spec.port)
	require.NoError(t, err)

	inst := &TestDBInstance{Container: container, Dialect: spec.dialect, DSN: spec.dsn(host, mapped), Host: host, Port: mapped}
	gl := logger.NewGormLogger(zaptest.NewLogger(t), false)

	// MySQL masih menolak koneksi sesaat setelah port terbuka
	var lastErr error
	for i := 0; i < 10; i++ {
		conn, err := db.New(spec.dialect, inst.DSN, gl)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Ping(pingCtx)
			cancel()
			if err == nil {
				inst.Conn = conn
				break
			}
			_ = conn.Close()
		}
		lastErr = err
		t.Logf("%s connection attempt %d failed: %v. Retrying in 2s...", spec.dialect, i+1, err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			t.Fatalf("context cancelled while connecting to %s: %v", spec.dialect, ctx.Err())
		}
	}
	require.NotNil(t, inst.Conn, "could not connect to %s: %v", spec.dialect, lastErr)
	t.Cleanup(func() { _ = inst.Conn.Close() })

	t.Logf("%s container started. Host: %s, Port: %s", spec.dialect, host, mapped.Port())
	return inst
}
