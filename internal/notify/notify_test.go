package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
)

// stubSink records sent messages and fails with err when set.
type stubSink struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *stubSink) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, msg)

	return s.err
}

// TestWebhookSinkPayload verifies the relay receives the JSON payload.
func TestWebhookSinkPayload(t *testing.T) {
	t.Parallel()

	payloads := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		payloads <- payload

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(server.URL, nil)
	require.NoError(t, err)

	err = sink.Send(context.Background(), Message{
		Channel:   Email,
		Recipient: "admin@example.com",
		Title:     "Incident resolved: Smoke",
		Body:      "done",
	})
	require.NoError(t, err)
	require.Equal(t, webhookPayload{To: "admin@example.com", Subject: "Incident resolved: Smoke", Body: "done"}, <-payloads)
}

// TestWebhookSinkErrors covers a missing URL, a missing recipient and a failing relay.
func TestWebhookSinkErrors(t *testing.T) {
	t.Parallel()

	_, err := NewWebhookSink("", nil)
	require.ErrorIs(t, err, ErrEmptyRelayURL)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(server.URL, server.Client())
	require.NoError(t, err)

	require.Error(t, sink.Send(context.Background(), Message{Channel: Email, Title: "x"}))
	require.ErrorContains(t, sink.Send(context.Background(), Message{Channel: Email, Recipient: "a@b.c"}), "502")
}

// TestRouterSwallowsFailures ensures failures and unknown channels reach the hook but not the caller.
func TestRouterSwallowsFailures(t *testing.T) {
	t.Parallel()

	type result struct {
		channel Channel
		failed  bool
	}

	var results []result

	router := NewRouter(func(ch Channel, err error) {
		results = append(results, result{channel: ch, failed: err != nil})
	})

	local := &stubSink{}
	email := &stubSink{err: errors.New("relay down")}
	router.Register(Local, local)
	router.Register(Email, email)

	router.Notify(context.Background(), Message{Channel: Local, Title: "a"})
	router.Notify(context.Background(), Message{Channel: Email, Title: "b"})
	router.Notify(context.Background(), Message{Channel: "PUSH", Title: "c"})

	require.Len(t, local.sent, 1)
	require.Len(t, email.sent, 1)
	require.Equal(t, []result{
		{channel: Local, failed: false},
		{channel: Email, failed: true},
		{channel: "PUSH", failed: true},
	}, results)
}

// TestAsyncOutlivesCallerContext verifies deliveries run after the caller's context is cancelled.
func TestAsyncOutlivesCallerContext(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	router := NewRouter(nil)
	router.Register(Local, sink)

	async := NewAsync(Multi{router, nil}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	async.Notify(ctx, Message{Channel: Local, Title: "late"})
	async.Wait()

	require.Len(t, sink.sent, 1)
}

// TestParseChannel checks channel parsing.
func TestParseChannel(t *testing.T) {
	t.Parallel()

	ch, err := ParseChannel("email")
	require.NoError(t, err)
	require.Equal(t, Email, ch)

	_, err = ParseChannel("sms")
	require.Error(t, err)
}

// TestTemplates verifies report and resolution messages.
func TestTemplates(t *testing.T) {
	t.Parallel()

	msg, err := ReportEmail("admin@example.com", incident.Draft{
		SensorID: "SN-01",
		Title:    "Smoke",
		Message:  "Smell of smoke near the sensor",
		Location: "Lab 2",
	})
	require.NoError(t, err)
	require.Equal(t, Email, msg.Channel)
	require.Equal(t, "New incident: Smoke", msg.Title)
	require.Contains(t, msg.Body, "Lab 2")
	require.Contains(t, msg.Body, "Smell of smoke")

	inc := &incident.Incident{
		ID:         "inc-1",
		SensorID:   "SN-01",
		Title:      "Smoke",
		Location:   "Lab 2",
		Status:     incident.StatusResolved,
		ResolvedAt: time.Date(2024, time.March, 7, 9, 5, 0, 0, time.UTC),
	}

	messages, err := ResolutionMessages("admin@example.com", inc)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, Local, messages[0].Channel)
	require.Equal(t, "Incident resolved: Smoke", messages[1].Title)
	require.Contains(t, messages[1].Body, "2024-03-07 09:05:00")

	messages, err = ResolutionMessages("", inc)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}
