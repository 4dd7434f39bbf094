package dashboard

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/notify"
	"github.com/oshokin/breathe-tracking/internal/observability/metrics"
	repository "github.com/oshokin/breathe-tracking/internal/repository/incident"
	"github.com/oshokin/breathe-tracking/internal/service/incidents"
	"github.com/oshokin/breathe-tracking/internal/session"
	"github.com/oshokin/breathe-tracking/internal/threshold"
	"github.com/oshokin/breathe-tracking/internal/tracker"
)

const (
	testSensor = "SN-01"
	testAdmin  = "admin@example.com"
)

// recordingNotifier keeps every message it is asked to deliver.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)
}

func (r *recordingNotifier) titles(channel notify.Channel) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var titles []string

	for _, m := range r.messages {
		if m.Channel == channel {
			titles = append(titles, m.Title)
		}
	}

	return titles
}

// failingSensorStore refuses sensor list subscriptions.
type failingSensorStore struct {
	incident.Store
}

func (failingSensorStore) WatchSensor(context.Context, string, int, func(incident.ListUpdate)) (incident.Subscription, error) {
	return nil, errors.New("permission denied")
}

type fixture struct {
	engine   *Engine
	store    *incidents.Service
	session  *session.Store
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

// newFixture starts an engine over a file-backed store and stops it at cleanup.
func newFixture(t *testing.T, wrap func(incident.Store) incident.Store) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC))
	store := incidents.NewService(
		repository.NewFileRepository(filepath.Join(t.TempDir(), "incidents.json")),
		incidents.WithClock(clock),
	)

	aggregator, err := alerts.New(alerts.Options{Policy: alerts.PolicyReplaceMerge, Cap: 3, Clock: clock})
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		session:  session.New(),
		notifier: new(recordingNotifier),
		metrics:  metrics.NewMetricsForTesting(),
	}

	var source incident.Store = store
	if wrap != nil {
		source = wrap(store)
	}

	f.engine, err = New(Deps{
		Store:      source,
		Session:    f.session,
		Evaluator:  threshold.NewEvaluator(threshold.DefaultTable()),
		Aggregator: aggregator,
		Notifier:   f.notifier,
		Metrics:    f.metrics,
		Clock:      clock,
	}, Options{
		SensorID:   testSensor,
		Location:   "Lab 2",
		AdminEmail: testAdmin,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- f.engine.Run(ctx) }()

	t.Cleanup(func() {
		assert.NoError(t, f.engine.Close(context.Background()))
		cancel()
		assert.NoError(t, <-done)
	})

	return f
}

// flush waits until everything posted so far ran on the engine.
func (f *fixture) flush(t *testing.T) {
	t.Helper()

	require.NoError(t, f.engine.do(context.Background(), func() {}))
}

func (f *fixture) latest(t *testing.T, channel string) any {
	t.Helper()

	v, ok := f.session.Latest(channel)
	require.True(t, ok, "channel %s has no value", channel)

	return v.Data
}

func readingOf(kind reading.MetricKind, value float64) reading.Reading {
	return reading.Reading{Kind: kind, Value: value, ObservedAt: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
}

// TestNew_RequiresCollaborators rejects missing dependencies.
func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Options{SensorID: testSensor})
	require.ErrorIs(t, err, errNilStore)

	store := incidents.NewService(repository.NewFileRepository(filepath.Join(t.TempDir(), "x.json")))
	aggregator, err := alerts.New(alerts.Options{})
	require.NoError(t, err)

	_, err = New(Deps{
		Store:      store,
		Session:    session.New(),
		Evaluator:  threshold.NewEvaluator(threshold.DefaultTable()),
		Aggregator: aggregator,
	}, Options{})
	require.ErrorIs(t, err, errEmptySensorID)
}

// TestNew_ChannelAlreadyClaimed fails when another writer owns a channel.
func TestNew_ChannelAlreadyClaimed(t *testing.T) {
	t.Parallel()

	sessionStore := session.New()
	_, err := sessionStore.Claim(session.ChannelAlerts, "someone-else")
	require.NoError(t, err)

	aggregator, err := alerts.New(alerts.Options{})
	require.NoError(t, err)

	_, err = New(Deps{
		Store:      incidents.NewService(repository.NewFileRepository(filepath.Join(t.TempDir(), "x.json"))),
		Session:    sessionStore,
		Evaluator:  threshold.NewEvaluator(threshold.DefaultTable()),
		Aggregator: aggregator,
	}, Options{SensorID: testSensor})
	require.ErrorIs(t, err, session.ErrWriterTaken)
}

// TestHandleReadings_PublishesGaugesAndAlerts checks the reading to alert history flow.
func TestHandleReadings_PublishesGaugesAndAlerts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{
		readingOf(reading.CarbonDioxide, 900),
		readingOf(reading.Ozone, 0.95),
		readingOf(reading.Signal, -65),
		readingOf(reading.Battery, 12),
	}))

	gauge, ok := f.latest(t, reading.CarbonDioxide.Channel()).(Gauge)
	require.True(t, ok)
	require.Equal(t, "RISK", gauge.Level)
	require.Equal(t, "ppm", gauge.Unit)

	signal, ok := f.latest(t, reading.Signal.Channel()).(Gauge)
	require.True(t, ok)
	require.Equal(t, 3, signal.SignalBars)

	battery, ok := f.latest(t, reading.Battery.Channel()).(Gauge)
	require.True(t, ok)
	require.True(t, battery.Low)

	history, ok := f.latest(t, session.ChannelAlerts).([]string)
	require.True(t, ok)
	require.Equal(t, []string{
		"CO2: 900 ppm exceeds risk threshold",
		"Ozone: 0.95 ppm exceeds danger threshold",
		"Battery: 12 % falls below risk threshold",
	}, history)

	require.InDelta(t, 4, testutil.ToFloat64(f.metrics.ReadingsConsumed), 0)
	require.InDelta(t, 3, testutil.ToFloat64(f.metrics.AlertHistorySize), 0)
}

// TestHandleReadings_EmptyBatchKeepsHistory verifies that no data never clears alerts.
func TestHandleReadings_EmptyBatchKeepsHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 1300)}))
	before, _ := f.session.Latest(session.ChannelAlerts)

	require.NoError(t, f.engine.HandleReadings(ctx, nil))
	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 400)}))

	after, _ := f.session.Latest(session.ChannelAlerts)
	require.Equal(t, before.Seq, after.Seq)
	require.Equal(t, before.Data, after.Data)
}

// TestHandleReadings_UnknownMetricRejectsBatch publishes nothing from a batch with an unknown metric.
func TestHandleReadings_UnknownMetricRejectsBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	err := f.engine.HandleReadings(context.Background(), []reading.Reading{
		readingOf(reading.CarbonDioxide, 1300),
		readingOf(reading.MetricKind("RADON"), 1),
	})

	var cfgErr *threshold.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, ok := f.session.Latest(reading.CarbonDioxide.Channel())
	require.False(t, ok)
}

// TestHandleReadings_Exposure publishes the per-metric exposure summary.
func TestHandleReadings_Exposure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	batch := make([]reading.Reading, 0, 10)
	for i := range 10 {
		value := 400.0
		if i%2 == 0 {
			value = 1500
		}

		batch = append(batch, readingOf(reading.CarbonDioxide, value))
	}

	require.NoError(t, f.engine.HandleReadings(context.Background(), batch))

	exposure, ok := f.latest(t, session.ChannelExposure).(map[reading.MetricKind]threshold.ExposureSummary)
	require.True(t, ok)
	require.Equal(t, threshold.ExposureDangerous, exposure[reading.CarbonDioxide].Exposure)
	require.Equal(t, 5, exposure[reading.CarbonDioxide].Danger)
}

// TestSetConnection_Overlay raises the overlay on disconnect and lowers it on reconnect.
func TestSetConnection_Overlay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	seen := time.Date(2025, 3, 14, 9, 29, 0, 0, time.UTC)

	require.NoError(t, f.engine.SetConnection(ctx, false, seen))
	require.Equal(t, Disconnected, f.latest(t, session.ChannelConnectionStatus))
	require.Equal(t, Lock{Overlay: true}, f.latest(t, session.ChannelIncidentStatus))
	require.Equal(t, seen, f.latest(t, session.ChannelLastSeen))

	require.NoError(t, f.engine.SetConnection(ctx, true, time.Time{}))
	require.Equal(t, Connected, f.latest(t, session.ChannelConnectionStatus))
	require.Equal(t, Lock{}, f.latest(t, session.ChannelIncidentStatus))
}

// TestDisconnectionDraft names the sensor and its latest readings.
func TestDisconnectionDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	draft, err := f.engine.DisconnectionDraft(ctx)
	require.NoError(t, err)
	require.Equal(t, "ALERT: Sensor SN-01 disconnected", draft.Title)
	require.Contains(t, draft.Message, "no readings received")

	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 650)}))

	draft, err = f.engine.DisconnectionDraft(ctx)
	require.NoError(t, err)
	require.Contains(t, draft.Message, "CO2 650 ppm")
	require.Equal(t, "Lab 2", draft.Location)
}

// TestReportIncident_ResolutionHandledOnce walks a report through resolution.
func TestReportIncident_ResolutionHandledOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.SetConnection(ctx, false, time.Time{}))

	created, err := f.engine.ReportIncident(ctx, incident.Draft{Title: "Smoke", Message: "Smell of smoke"})
	require.NoError(t, err)
	require.Equal(t, testSensor, created.SensorID)
	require.Equal(t, []string{"New incident: Smoke"}, f.notifier.titles(notify.Email))
	require.Equal(t, Lock{Overlay: true, Reported: true, IncidentID: created.ID},
		f.latest(t, session.ChannelIncidentStatus))

	submitted, ok := f.latest(t, session.ChannelSubmittedIncidents).([]string)
	require.True(t, ok)
	require.Equal(t, []string{incident.Summary{Title: "Smoke", CreatedAt: created.CreatedAt}.String()}, submitted)

	state, err := f.engine.TrackerState(ctx)
	require.NoError(t, err)
	require.Equal(t, tracker.Watching, state)

	_, err = f.store.Resolve(ctx, created.ID)
	require.NoError(t, err)
	_, err = f.store.Resolve(ctx, created.ID)
	require.NoError(t, err)
	f.flush(t)

	state, err = f.engine.TrackerState(ctx)
	require.NoError(t, err)
	require.Equal(t, tracker.ResolvedHandled, state)
	require.Equal(t, Lock{}, f.latest(t, session.ChannelIncidentStatus))
	require.Equal(t, []string{"Incident resolved: Smoke"}, f.notifier.titles(notify.Local))
	require.Equal(t, []string{"New incident: Smoke", "Incident resolved: Smoke"}, f.notifier.titles(notify.Email))
	require.InDelta(t, 1, testutil.ToFloat64(f.metrics.Resolutions), 0)

	documents, _ := f.store.Watchers()
	require.Zero(t, documents)
}

// TestReportIncident_RejectsIncompleteDraft sends nothing for a blank report.
func TestReportIncident_RejectsIncompleteDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	_, err := f.engine.ReportIncident(context.Background(), incident.Draft{Title: "Smoke"})
	require.ErrorIs(t, err, incident.ErrIncompleteReport)
	require.Empty(t, f.notifier.titles(notify.Email))
}

// TestReportIncident_SubmittedHistoryCapped keeps the four most recent reports, newest first.
func TestReportIncident_SubmittedHistoryCapped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		_, err := f.engine.ReportIncident(ctx, incident.Draft{Title: title, Message: "m"})
		require.NoError(t, err)
	}

	submitted, ok := f.latest(t, session.ChannelSubmittedIncidents).([]string)
	require.True(t, ok)
	require.Len(t, submitted, 4)
	require.Contains(t, submitted[0], " - e")
	require.Contains(t, submitted[3], " - b")

	documents, _ := f.store.Watchers()
	require.Equal(t, 1, documents)
}

// TestWatchSensorIncidents_SharedResolution handles a resolution seen by both the feed and the watch once.
func TestWatchSensorIncidents_SharedResolution(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.WatchSensorIncidents(ctx))
	require.NoError(t, f.engine.WatchSensorIncidents(ctx))

	_, sensors := f.store.Watchers()
	require.Equal(t, 1, sensors)

	other, err := f.store.Create(ctx, incident.Draft{SensorID: testSensor, Title: "Leak", Message: "m"})
	require.NoError(t, err)

	reported, err := f.engine.ReportIncident(ctx, incident.Draft{Title: "Smoke", Message: "m"})
	require.NoError(t, err)
	f.flush(t)

	summaries, ok := f.latest(t, session.ChannelIncidentSummaries).([]string)
	require.True(t, ok)
	require.Len(t, summaries, 2)

	_, err = f.store.Resolve(ctx, reported.ID)
	require.NoError(t, err)
	_, err = f.store.Resolve(ctx, other.ID)
	require.NoError(t, err)
	f.flush(t)

	require.ElementsMatch(t,
		[]string{"Incident resolved: Smoke", "Incident resolved: Leak"},
		f.notifier.titles(notify.Local))

	summaries, ok = f.latest(t, session.ChannelIncidentSummaries).([]string)
	require.True(t, ok)
	require.Empty(t, summaries)
}

// TestUnlock_UnrelatedResolutionKeepsLock keeps the report lock, overlay included, until its own incident resolves.
func TestUnlock_UnrelatedResolutionKeepsLock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.SetConnection(ctx, false, time.Time{}))
	require.NoError(t, f.engine.WatchSensorIncidents(ctx))

	other, err := f.store.Create(ctx, incident.Draft{SensorID: testSensor, Title: "Leak", Message: "m"})
	require.NoError(t, err)

	reported, err := f.engine.ReportIncident(ctx, incident.Draft{Title: "Smoke", Message: "m"})
	require.NoError(t, err)
	f.flush(t)

	_, err = f.store.Resolve(ctx, other.ID)
	require.NoError(t, err)
	f.flush(t)

	require.Equal(t, []string{"Incident resolved: Leak"}, f.notifier.titles(notify.Local))
	require.Equal(t, Lock{Overlay: true, Reported: true, IncidentID: reported.ID},
		f.latest(t, session.ChannelIncidentStatus))

	_, err = f.store.Resolve(ctx, reported.ID)
	require.NoError(t, err)
	f.flush(t)

	require.Equal(t, Lock{}, f.latest(t, session.ChannelIncidentStatus))
}

// TestWatchSensorIncidents_SubscriptionError publishes the error and keeps the other channels.
func TestWatchSensorIncidents_SubscriptionError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s incident.Store) incident.Store { return failingSensorStore{Store: s} })
	ctx := context.Background()

	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 1300)}))
	before := f.latest(t, session.ChannelAlerts)

	err := f.engine.WatchSensorIncidents(ctx)

	var subErr *tracker.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, testSensor, subErr.SensorID)
	require.Contains(t, f.latest(t, session.ChannelErrors), "permission denied")
	require.Equal(t, before, f.latest(t, session.ChannelAlerts))
	require.InDelta(t, 1, testutil.ToFloat64(f.metrics.SubscriptionErrors.WithLabelValues("sensor")), 0)
}

// TestCancelWatch_LateResolutionIgnored emits nothing for a resolution after the watch was cancelled.
func TestCancelWatch_LateResolutionIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.engine.ReportIncident(ctx, incident.Draft{Title: "Smoke", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelWatch(ctx))

	_, err = f.store.Resolve(ctx, created.ID)
	require.NoError(t, err)
	f.flush(t)

	require.Empty(t, f.notifier.titles(notify.Local))

	state, err := f.engine.TrackerState(ctx)
	require.NoError(t, err)
	require.Equal(t, tracker.Unwatched, state)
}

// TestReset_ClearsSession drops every value, tells observers and accepts a new session afterwards.
func TestReset_ClearsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 1300)}))
	require.NoError(t, f.engine.WatchSensorIncidents(ctx))

	var (
		mu       sync.Mutex
		observed []session.Value
	)

	stop := f.session.Observe(session.ChannelAlerts, func(v session.Value) {
		mu.Lock()
		defer mu.Unlock()

		observed = append(observed, v)
	})
	defer stop()

	require.NoError(t, f.engine.Reset(ctx))
	require.Empty(t, f.session.Snapshot())

	mu.Lock()
	require.Len(t, observed, 2)
	require.Nil(t, observed[1].Data)
	mu.Unlock()

	_, sensors := f.store.Watchers()
	require.Zero(t, sensors)

	require.NoError(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 1300)}))

	history, ok := f.latest(t, session.ChannelAlerts).([]string)
	require.True(t, ok)
	require.Len(t, history, 1)
}

// TestClose_StopsDeliveries rejects calls once the engine is closed.
func TestClose_StopsDeliveries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.ReportIncident(ctx, incident.Draft{Title: "Smoke", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, f.engine.Close(ctx))

	documents, _ := f.store.Watchers()
	require.Zero(t, documents)

	require.Error(t, f.engine.HandleReadings(ctx, []reading.Reading{readingOf(reading.CarbonDioxide, 1)}))
}
