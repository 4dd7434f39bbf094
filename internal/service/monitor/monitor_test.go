package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/feed/kafka"
	"github.com/oshokin/breathe-tracking/internal/notify"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
	repository "github.com/oshokin/breathe-tracking/internal/repository/incident"
	"github.com/oshokin/breathe-tracking/internal/service/incidents"
	"github.com/oshokin/breathe-tracking/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		ServerAddress: "127.0.0.1:7001",
		Sensor:        config.Sensor{ID: "SN-01", Location: "Lab 2"},
		Alerts:        config.Alerts{Policy: string(alerts.PolicyInsertNewOnly)},
	}
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// TestApplyOverrides lets command line values win over the file.
func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	applyOverrides(cfg, &Options{ServerAddress: "10.0.0.1:7001", SensorID: "SN-02", HTTPAddress: ":9090"})

	require.Equal(t, "10.0.0.1:7001", cfg.ServerAddress)
	require.Equal(t, "SN-02", cfg.Sensor.ID)
	require.Equal(t, ":9090", cfg.HTTPAddress)
}

// TestNewEngine wires the configured policy and sensor into a working session.
func TestNewEngine(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	store := incidents.NewService(repository.NewFileRepository(filepath.Join(t.TempDir(), "incidents.json")))

	engine, err := newEngine(cfg, store, session.New(), notify.Multi(nil), metrics.NewMetricsForTesting())
	require.NoError(t, err)
	require.NotNil(t, engine)

	cfg.Sensor.ID = ""
	_, err = newEngine(cfg, store, session.New(), notify.Multi(nil), metrics.NewMetricsForTesting())
	require.Error(t, err)
}

// TestBuildNotifier requires a valid relay URL only when one is configured.
func TestBuildNotifier(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)

	n, err := buildNotifier(cfg, metrics.NewMetricsForTesting())
	require.NoError(t, err)

	n.Notify(context.Background(), notify.Message{Channel: notify.Local, Title: "t", Body: "b"})
	n.Wait()

	cfg.Notifications.MailRelayURL = "https://relay.example.com/send"

	_, err = buildNotifier(cfg, metrics.NewMetricsForTesting())
	require.NoError(t, err)
}

// TestWalker_Deterministic produces the same walk for the same seed within plausible bounds.
func TestWalker_Deterministic(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	a := newWalker("SN-01", "Lab 2", 42, clock)
	b := newWalker("SN-01", "Lab 2", 42, clock)

	for range 50 {
		sa, sb := a.next(), b.next()

		require.Equal(t, sa, sb)
		require.GreaterOrEqual(t, *sa.CO2, 350.0)
		require.LessOrEqual(t, *sa.Battery, 100.0)
		require.Equal(t, "SN-01", sa.SensorID)
	}
}

// TestWalker_RunCount publishes exactly count samples, one per tick.
func TestWalker_RunCount(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	w := newWalker("SN-01", "", 7, clock)

	published := make(chan kafka.Sample, 3)
	done := make(chan error, 1)

	go func() {
		done <- w.run(context.Background(), time.Second, 3, func(_ context.Context, s kafka.Sample) error {
			published <- s

			return nil
		})
	}()

	for range 2 {
		<-published
		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(time.Second)
	}

	<-published
	require.NoError(t, <-done)
}

// TestWalker_RunPublishError stops on the first failed publish.
func TestWalker_RunPublishError(t *testing.T) {
	t.Parallel()

	w := newWalker("SN-01", "", 7, clockwork.NewFakeClock())

	err := w.run(context.Background(), time.Second, 0, func(context.Context, kafka.Sample) error {
		return errors.New("broker down")
	})
	require.ErrorContains(t, err, "broker down")
}
