package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/metrics"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// EventSource is the outbox as seen by the notifier.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Dispatcher relays outbox events to the configured webhooks. Each hook keeps its own
// cursor, starting at the newest event seen when the hook is first polled; the cursor
// moves past an event only once the hook answered 2xx or does not subscribe to it.
type Dispatcher struct {
	Source   EventSource
	Webhooks []config.WebhookConfig
	Interval time.Duration
	Client   *http.Client
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics

	mu      sync.Mutex
	cursors map[int]int64
}

func New(src EventSource, cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	interval := defaultInterval
	if cfg.Notifier.IntervalSeconds > 0 {
		interval = time.Duration(cfg.Notifier.IntervalSeconds) * time.Second
	}
	return &Dispatcher{
		Source:   src,
		Webhooks: cfg.Webhooks,
		Interval: interval,
		Client:   &http.Client{Timeout: defaultTimeout},
		Logger:   logger,
		Metrics:  m,
	}
}

func (d *Dispatcher) logger() *logrus.Logger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}

// Run polls until ctx is cancelled. It returns immediately when no hook is active.
func (d *Dispatcher) Run(ctx context.Context) {
	active := false
	for _, hook := range d.Webhooks {
		active = active || hook.Active()
	}
	if !active {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch to every active hook.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, hook := range d.Webhooks {
		if !hook.Active() {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *Dispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	log := d.logger().WithField("hook", hook.URL)
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		log.WithError(err).Error("webhook: init cursor failed")
		return
	}
	evts, err := d.Source.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		log.WithError(err).Error("webhook: fetch events failed")
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		err := d.postEvent(ctx, hook, evt)
		d.Metrics.ObserveDelivery(err == nil)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{"event_id": evt.ID, "event_type": evt.Type}).Warn("webhook: delivery failed")
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.Source.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

// Cursor returns the last event id acknowledged for hook idx.
func (d *Dispatcher) Cursor(idx int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.cursors[idx]
	return cur, ok
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   int64           `json:"entity_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *Dispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage(evt.Payload)
		} else {
			raw = evt.Payload
		}
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	})
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			c := *client
			c.Timeout = timeout
			client = &c
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskboard-Event", evt.Type)
	req.Header.Set("X-Taskboard-Delivery", uuid.NewString())
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Taskboard-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
