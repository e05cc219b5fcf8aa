package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEndpoint = errors.New("endpoint down")

func testConfig() *Config {
	return &Config{
		Name:        "test",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
}

func TestClosedPassesThrough(t *testing.T) {
	cb := New(testConfig())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	err := cb.Execute(func() error { return errEndpoint })
	assert.ErrorIs(t, err, errEndpoint)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCountsOneRequestPerCall(t *testing.T) {
	cb := New(testConfig())

	require.NoError(t, cb.Execute(func() error { return nil }))
	counts := cb.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	cb.Execute(func() error { return errEndpoint })
	counts = cb.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}

func TestTripsOpenAndBlocks(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errEndpoint })
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errEndpoint })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// MaxRequests consecutive successes close the circuit again.
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errEndpoint })
	}
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.Execute(func() error { return errEndpoint })
	assert.Equal(t, StateOpen, cb.State())
}

func TestExecuteValueReturnsResult(t *testing.T) {
	cb := New(testConfig())
	v, err := cb.ExecuteValue(func() (interface{}, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDefaultConfigTripCondition(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.ReadyToTrip(Counts{Requests: 4, TotalFailures: 4}))
	assert.False(t, cfg.ReadyToTrip(Counts{Requests: 10, TotalFailures: 5}))
	assert.True(t, cfg.ReadyToTrip(Counts{Requests: 10, TotalFailures: 6}))
}

func TestManagerReusesBreakerPerEndpoint(t *testing.T) {
	m := NewManager(nil)

	a := m.Get("https://mpcb.example/hook")
	b := m.Get("https://mpcb.example/hook")
	assert.Same(t, a, b)
	assert.Equal(t, "https://mpcb.example/hook", a.Name())

	c := m.Get("https://other.example/hook")
	assert.NotSame(t, a, c)
	assert.Len(t, m.List(), 2)

	m.Remove("https://other.example/hook")
	assert.Len(t, m.List(), 1)
}

func TestManagerHealthStatus(t *testing.T) {
	m := NewManager(testConfig())

	cb := m.Get("hook")
	status, detail := m.HealthStatus()
	assert.Equal(t, "HEALTHY", status)
	assert.Equal(t, "CLOSED", detail["hook"])

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return errEndpoint })
	}
	status, detail = m.HealthStatus()
	assert.Equal(t, "DEGRADED", status)
	assert.Equal(t, "OPEN", detail["hook"])
}
