// Package webhooks delivers signed solve callbacks with retries.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shelterroute/internal/config"
	"shelterroute/internal/metrics"
)

// Enqueue errors. A full queue drops the delivery.
var (
	ErrQueueFull = errors.New("webhooks: queue full")
	ErrClosed    = errors.New("webhooks: dispatcher closed")
)

const queueSize = 256

type Delivery struct {
	ID        string
	Tenant    string
	URL       string
	EventType string
	Payload   []byte
}

// Dispatcher posts deliveries from an in-process queue. Each delivery is
// tried up to MaxAttempts times with exponential backoff between attempts.
type Dispatcher struct {
	HTTP        *http.Client
	Secret      string
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Log         logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	queue  chan Delivery
	wg     sync.WaitGroup
}

func NewDispatcher(cfg config.Webhook, log logrus.FieldLogger) *Dispatcher {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{
		HTTP:        &http.Client{Timeout: cfg.Timeout},
		Secret:      cfg.Secret,
		MaxAttempts: attempts,
		Backoff:     nextBackoff,
		Log:         log,
		queue:       make(chan Delivery, queueSize),
	}
}

// Start runs n workers until ctx is done or Close is called.
func (d *Dispatcher) Start(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case it, ok := <-d.queue:
					if !ok {
						return
					}
					d.process(ctx, it)
				}
			}
		}()
	}
}

// Close stops accepting deliveries and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Notify wraps data in an event envelope and queues it for url.
func (d *Dispatcher) Notify(tenant, url, eventType string, data any) error {
	id := "evt_" + uuid.NewString()
	body, err := json.Marshal(map[string]any{
		"id":       id,
		"type":     eventType,
		"tenantId": tenant,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	})
	if err != nil {
		return fmt.Errorf("webhooks: encode %s: %w", eventType, err)
	}
	return d.Enqueue(Delivery{ID: id, Tenant: tenant, URL: url, EventType: eventType, Payload: body})
}

func (d *Dispatcher) Enqueue(it Delivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- it:
		return nil
	default:
		metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

func (d *Dispatcher) process(ctx context.Context, it Delivery) {
	log := d.Log.WithFields(logrus.Fields{"delivery_id": it.ID, "event": it.EventType, "tenant": it.Tenant})
	for attempt := 0; attempt < d.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.Backoff(attempt - 1)):
			}
		}
		code, latency, err := d.send(ctx, it)
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
			log.WithFields(logrus.Fields{"code": code, "latency_ms": latency, "attempt": attempt + 1}).Debug("webhook delivered")
			return
		}
		log.WithError(err).WithFields(logrus.Fields{"code": code, "attempt": attempt + 1}).Warn("webhook attempt failed")
	}
	metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	log.Error("webhook delivery gave up")
}

func (d *Dispatcher) send(ctx context.Context, it Delivery) (int, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	req.Header.Set(HeaderDelivery, it.ID)
	if d.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(d.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := d.HTTP.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return 0, latency, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, latency, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
