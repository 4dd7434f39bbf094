package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/service/common"
)

// TestResolveListenAddress covers override, port extraction and errors.
func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	addr, err := resolveListenAddress("incidents.example.com:7001", "")
	require.NoError(t, err)
	require.Equal(t, ":7001", addr)

	addr, err = resolveListenAddress("incidents.example.com:7001", "127.0.0.1:9000")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", addr)

	_, err = resolveListenAddress("", "")
	require.ErrorIs(t, err, ErrNoServerAddress)

	_, err = resolveListenAddress("no-port", "")
	require.Error(t, err)
}

// TestOpenRepository_File uses the state file without a database URL.
func TestOpenRepository_File(t *testing.T) {
	t.Parallel()

	settings := &config.Config{StateFile: filepath.Join(t.TempDir(), "incidents.json")}

	repo, err := openRepository(context.Background(), settings)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	require.Equal(t, settings.StateFile, storageName(settings))
}

// freePort reserves and releases a loopback port.
func freePort(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	return addr
}

// TestRun_ServesIncidents starts the server, creates an incident over gRPC and stops on cancel.
func TestRun_ServesIncidents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	addr := freePort(t)

	cfg := &config.Config{ServerAddress: addr, StateFile: filepath.Join(dir, "incidents.json")}
	cfgPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- Run(ctx, &Options{ConfigPath: cfgPath, ListenAddress: addr}) }()

	client, err := common.Dial(ctx, addr, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	defer func() { _ = client.Close() }()

	var created *incident.Incident

	require.Eventually(t, func() bool {
		created, err = client.Create(ctx, incident.Draft{SensorID: "SN-01", Title: "Smoke", Message: "m"})

		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	require.Equal(t, incident.StatusPending, created.Status)

	cancel()
	require.NoError(t, <-done)

	_, err = os.Stat(cfg.StateFile)
	require.NoError(t, err)
}
