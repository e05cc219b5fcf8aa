package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedDelivery struct {
	header http.Header
	event  Event
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedDelivery) {
	t.Helper()
	var mu sync.Mutex
	var deliveries []capturedDelivery

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var ev Event
		require.NoError(t, json.Unmarshal(body, &ev))

		mu.Lock()
		deliveries = append(deliveries, capturedDelivery{header: r.Header.Clone(), event: ev})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedDelivery {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedDelivery(nil), deliveries...)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcherDelivers(t *testing.T) {
	srv, got := newCaptureServer(t)

	reg := NewRegistry()
	require.NoError(t, reg.Register(&Subscription{
		URL:    srv.URL,
		Secret: "topsecret",
		Events: []EventType{EventAlertRouted},
	}))

	d := NewDispatcher(reg, 2)
	d.Emit(EventAlertRouted, "FACTORY_B", map[string]interface{}{"eri": 4.2})
	waitFor(t, func() bool { return len(got()) == 1 })
	d.Shutdown()

	del := got()[0]
	assert.Equal(t, EventAlertRouted, del.event.Type)
	assert.Equal(t, "FACTORY_B", del.event.DischargePoint)
	assert.Equal(t, "/cetp/sentinel", del.event.Source)
	assert.Equal(t, 4.2, del.event.Data["eri"])

	assert.Equal(t, "alert.routed", del.header.Get("X-Sentinel-Event-Type"))
	assert.Equal(t, "1", del.header.Get("X-Sentinel-Delivery-Attempt"))
	assert.NotEmpty(t, del.header.Get("X-Sentinel-Event-ID"))
	assert.Contains(t, del.header.Get("X-Sentinel-Signature"), "sha256=")
}

func TestDispatcherSkipsOtherEventTypes(t *testing.T) {
	srv, got := newCaptureServer(t)

	reg := NewRegistry()
	require.NoError(t, reg.Register(&Subscription{
		URL:    srv.URL,
		Events: []EventType{EventTamperDetected},
	}))

	d := NewDispatcher(reg, 1)
	d.Emit(EventAlertRouted, "FACTORY_B", nil)
	d.Shutdown()

	assert.Empty(t, got())
}

func TestDispatcherHonorsPointFilter(t *testing.T) {
	srv, got := newCaptureServer(t)

	reg := NewRegistry()
	require.NoError(t, reg.Register(&Subscription{
		URL:    srv.URL,
		Events: []EventType{EventAlertRouted},
		Points: []string{"FACTORY_D"},
	}))

	d := NewDispatcher(reg, 1)
	d.Emit(EventAlertRouted, "FACTORY_B", nil)
	d.Emit(EventAlertRouted, "FACTORY_D", nil)
	waitFor(t, func() bool { return len(got()) == 1 })
	d.Shutdown()

	deliveries := got()
	require.Len(t, deliveries, 1)
	assert.Equal(t, "FACTORY_D", deliveries[0].event.DischargePoint)
}

func TestDispatcherMarksFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := NewRegistry()
	sub := &Subscription{URL: srv.URL, Events: []EventType{EventAlertRouted}}
	require.NoError(t, reg.Register(sub))

	d := NewDispatcher(reg, 1)
	d.Emit(EventAlertRouted, "FACTORY_B", nil)
	waitFor(t, func() bool {
		reg.mu.RLock()
		defer reg.mu.RUnlock()
		return sub.FailCount > 0
	})
	d.Shutdown()
}
