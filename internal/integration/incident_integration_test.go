package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/dashboard"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/notify"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
	"github.com/oshokin/breathe-tracking/internal/service/common"
	"github.com/oshokin/breathe-tracking/internal/service/server"
	"github.com/oshokin/breathe-tracking/internal/session"
	"github.com/oshokin/breathe-tracking/internal/threshold"
	"github.com/oshokin/breathe-tracking/internal/tracker"
)

const sensorID = "SN-IT"

// freeAddress reserves a local port for a test server.
func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startServer runs the incident server over statePath until the returned stop is called.
func startServer(t *testing.T, addr, statePath string) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	cfgPath := filepath.Join(t.TempDir(), "settings.yaml")

	require.NoError(t, config.Save(cfgPath, &config.Config{
		ServerAddress: addr,
		StateFile:     statePath,
		Timeout:       5 * time.Second,
	}))

	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: cfgPath})
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

// dial connects to addr and retries until the server accepts calls.
func dial(t *testing.T, addr string) *common.Client {
	t.Helper()

	client, err := common.Dial(context.Background(), addr, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	require.Eventually(t, func() bool {
		_, err := client.List(context.Background(), sensorID, 1)

		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	return client
}

// notifications counts delivered messages per channel.
type notifications struct {
	ch chan notify.Message
}

func (n *notifications) Notify(_ context.Context, msg notify.Message) {
	n.ch <- msg
}

// TestIncidentLifecycle_OverGRPC reports an incident from a monitor session, resolves it from
// another client and checks the session unlocks and notifies exactly once.
func TestIncidentLifecycle_OverGRPC(t *testing.T) {
	t.Parallel()

	addr := freeAddress(t)
	statePath := filepath.Join(t.TempDir(), "incidents.json")

	stop := startServer(t, addr, statePath)
	monitorClient := dial(t, addr)
	adminClient := dial(t, addr)

	aggregator, err := alerts.New(alerts.Options{Policy: alerts.PolicyInsertNewOnly})
	require.NoError(t, err)

	sessionStore := session.New()
	notifier := &notifications{ch: make(chan notify.Message, 16)}
	m := metrics.NewMetricsForTesting()

	engine, err := dashboard.New(dashboard.Deps{
		Store:      monitorClient,
		Session:    sessionStore,
		Evaluator:  threshold.NewEvaluator(threshold.DefaultTable()),
		Aggregator: aggregator,
		Notifier:   notifier,
		Metrics:    m,
	}, dashboard.Options{
		SensorID:   sensorID,
		Location:   "Integration lab",
		AdminEmail: "admin@example.com",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)

	go func() {
		engineDone <- engine.Run(ctx)
	}()

	require.NoError(t, engine.WatchSensorIncidents(ctx))

	// The report arrives on a request context that ends as soon as the call returns.
	requestCtx, endRequest := context.WithCancel(ctx)

	created, err := engine.ReportIncident(requestCtx, incident.Draft{Title: "Strange smell", Message: "Near the window"})
	require.NoError(t, err)

	endRequest()
	require.Equal(t, sensorID, created.SensorID)
	require.Equal(t, incident.StatusPending, created.Status)

	report := <-notifier.ch
	require.Equal(t, notify.Email, report.Channel)

	// The pending report shows up in the sensor list pushed by the server.
	require.Eventually(t, func() bool {
		v, ok := sessionStore.Latest(session.ChannelIncidentSummaries)
		if !ok {
			return false
		}

		lines, _ := v.Data.([]string)

		return len(lines) == 1
	}, 5*time.Second, 20*time.Millisecond)

	_, err = adminClient.Resolve(context.Background(), created.ID)
	require.NoError(t, err)

	// The document watch and the sensor list both see the resolution; effects fire once.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Resolutions) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		v, ok := sessionStore.Latest(session.ChannelIncidentStatus)
		if !ok {
			return false
		}

		lock, _ := v.Data.(dashboard.Lock)

		return !lock.Reported && !lock.Overlay
	}, 5*time.Second, 20*time.Millisecond)

	// The document watch itself saw the resolution, not only the sensor list.
	require.Eventually(t, func() bool {
		state, stateErr := engine.TrackerState(ctx)

		return stateErr == nil && state == tracker.ResolvedHandled
	}, 5*time.Second, 20*time.Millisecond)

	resolutionMessages := []notify.Message{<-notifier.ch, <-notifier.ch}
	assert.ElementsMatch(t,
		[]notify.Channel{notify.Local, notify.Email},
		[]notify.Channel{resolutionMessages[0].Channel, resolutionMessages[1].Channel})

	require.NoError(t, engine.Close(context.Background()))
	cancel()
	require.NoError(t, <-engineDone)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions))

	// The resolved incident survives a server restart.
	stop()

	stop = startServer(t, addr, statePath)
	defer stop()

	restarted := dial(t, addr)

	got, err := restarted.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, incident.StatusResolved, got.Status)
	require.False(t, got.ResolvedAt.IsZero())
}
