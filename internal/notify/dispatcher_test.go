package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/metrics"
	"taskboard/internal/notify"
)

type memOutbox struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *memOutbox) add(typ string, entityID int64, payload string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, domain.Event{
		ID: int64(len(m.events) + 1), Type: typ, EntityKind: "task", EntityID: entityID,
		TS: "2024-01-01T00:00:00Z", Payload: payload,
	})
}

func (m *memOutbox) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memOutbox) LatestEventID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

type received struct {
	event    string
	delivery string
	secret   string
	body     map[string]any
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDispatcherDeliversSubscribedEvents(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []received
		fail atomic.Bool
	)
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, received{
			event:    r.Header.Get("X-Taskboard-Event"),
			delivery: r.Header.Get("X-Taskboard-Delivery"),
			secret:   r.Header.Get("X-Taskboard-Secret"),
			body:     body,
		})
		mu.Unlock()
	}))
	defer srv.Close()

	outbox := &memOutbox{}
	outbox.add("task.created", 1, `{"name":"old"}`)

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: srv.URL, Secret: "s3cret", Events: []string{"task.created", "task.state_changed"}}}
	m := metrics.New()
	d := notify.New(outbox, cfg, quietLogger(), m)
	ctx := context.Background()

	// first poll pins the cursor at the newest existing event
	d.DispatchOnce(ctx)
	cur, ok := d.Cursor(0)
	require.True(t, ok)
	assert.Equal(t, int64(1), cur)

	outbox.add("task.created", 2, `{"name":"new"}`)
	outbox.add("user.created", 3, `{}`)
	outbox.add("task.state_changed", 2, `not json`)

	d.DispatchOnce(ctx)
	cur, _ = d.Cursor(0)
	assert.Equal(t, int64(1), cur, "failed delivery keeps the cursor")

	fail.Store(false)
	d.DispatchOnce(ctx)
	cur, _ = d.Cursor(0)
	assert.Equal(t, int64(4), cur)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "task.created", got[0].event)
	assert.Equal(t, "s3cret", got[0].secret)
	_, err := uuid.Parse(got[0].delivery)
	assert.NoError(t, err)
	assert.NotEqual(t, got[0].delivery, got[1].delivery)
	assert.Equal(t, map[string]any{"name": "new"}, got[0].body["payload"])
	assert.Equal(t, "task.state_changed", got[1].event)
	assert.Equal(t, "not json", got[1].body["payload_raw"])
}

func TestRunReturnsWithoutActiveHooks(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: "http://127.0.0.1:1", Enabled: &off}}
	d := notify.New(&memOutbox{}, cfg, quietLogger(), nil)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: srv.URL}}
	d := notify.New(&memOutbox{}, cfg, quietLogger(), nil)
	d.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
