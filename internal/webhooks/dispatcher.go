package webhooks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cetp/sentinel/internal/circuitbreaker"
	"github.com/cetp/sentinel/internal/metrics"
)

// Dispatcher sends webhook events to registered subscribers asynchronously.
// Each subscriber URL is wrapped in a circuit breaker so a dead endpoint
// stops consuming worker time quickly.
type Dispatcher struct {
	registry   *Registry
	breakers   *circuitbreaker.Manager
	httpClient *http.Client
	queue      chan *deliveryJob
	logger     *log.Logger
	prom       *metrics.PromMetrics
	wg         sync.WaitGroup
	workers    int

	mu     sync.Mutex
	closed bool
}

type deliveryJob struct {
	subscriber *Subscription
	event      *Event
	attempt    int
}

// NewDispatcher creates a webhook dispatcher with a background worker pool.
func NewDispatcher(registry *Registry, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		registry: registry,
		breakers: circuitbreaker.NewManager(circuitbreaker.DefaultConfig()),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		queue:   make(chan *deliveryJob, 1000),
		logger:  log.New(log.Writer(), "[DISPATCH] ", log.LstdFlags),
		prom:    metrics.Prom(),
		workers: workers,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Emit queues an event for every matching subscriber. The queue is bounded;
// overflow drops the delivery rather than blocking the pipeline.
func (d *Dispatcher) Emit(eventType EventType, dischargePoint string, data map[string]interface{}) {
	subscribers := d.registry.GetSubscribers(eventType)
	if len(subscribers) == 0 {
		return
	}

	event := &Event{
		ID:             "evt-" + uuid.NewString(),
		Type:           eventType,
		Source:         "/cetp/sentinel",
		Timestamp:      time.Now().UTC(),
		DischargePoint: dischargePoint,
		Data:           data,
	}

	for _, sub := range subscribers {
		if !sub.wantsPoint(dischargePoint) {
			continue
		}
		d.enqueue(&deliveryJob{subscriber: sub, event: event, attempt: 1})
	}
}

// enqueue adds a job unless the queue is full or the dispatcher has shut
// down. The closed check is what keeps a late retry from sending on the
// closed channel.
func (d *Dispatcher) enqueue(job *deliveryJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- job:
	default:
		d.logger.Printf("⚠️  Webhook queue full, dropping event %s for %s", job.event.ID, job.subscriber.ID)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job *deliveryJob) {
	payload, err := json.Marshal(job.event)
	if err != nil {
		d.logger.Printf("❌ Failed to marshal webhook event: %v", err)
		return
	}

	br := d.breakers.Get(job.subscriber.URL)
	err = br.Execute(func() error {
		req, err := http.NewRequest(http.MethodPost, job.subscriber.URL, bytes.NewReader(payload))
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Sentinel-Event-Type", string(job.event.Type))
		req.Header.Set("X-Sentinel-Event-ID", job.event.ID)
		req.Header.Set("X-Sentinel-Delivery-Attempt", fmt.Sprintf("%d", job.attempt))

		if job.subscriber.Secret != "" {
			sig := SignPayload(payload, job.subscriber.Secret)
			req.Header.Set("X-Sentinel-Signature", "sha256="+sig)
		}

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("subscriber returned %d", resp.StatusCode)
		}
		return nil
	})

	if err != nil {
		d.prom.WebhookDeliveries.WithLabelValues("failed").Inc()
		d.logger.Printf("❌ Webhook delivery failed: %s → %v", job.subscriber.URL, err)
		d.registry.MarkFailed(job.subscriber.ID)

		// Retry up to 3 times with quadratic backoff.
		if job.attempt < 3 {
			time.Sleep(time.Duration(job.attempt*job.attempt) * time.Second)
			job.attempt++
			d.enqueue(job)
		}
		return
	}

	d.prom.WebhookDeliveries.WithLabelValues("ok").Inc()
	d.logger.Printf("✅ Webhook delivered: %s → %s (%s)", job.event.Type, job.subscriber.URL, job.event.ID)
}

// Shutdown drains the queue and stops the worker pool. Retries still
// sleeping are dropped.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}
