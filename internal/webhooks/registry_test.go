package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAssignsIDAndActivates(t *testing.T) {
	r := NewRegistry()
	sub := &Subscription{URL: "https://mpcb.example/hook", Events: []EventType{EventAlertRouted}}

	require.NoError(t, r.Register(sub))
	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Active)
	assert.Len(t, r.GetSubscribers(EventAlertRouted), 1)
	assert.Empty(t, r.GetSubscribers(EventTamperDetected))
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Subscription{Events: []EventType{EventAlertRouted}}))
	assert.Error(t, r.Register(&Subscription{URL: "https://mpcb.example/hook"}))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	sub := &Subscription{URL: "https://mpcb.example/hook", Events: []EventType{EventAlertRouted, EventShockDetected}}
	require.NoError(t, r.Register(sub))

	require.NoError(t, r.Unregister(sub.ID))
	assert.Empty(t, r.GetSubscribers(EventAlertRouted))
	assert.Empty(t, r.GetSubscribers(EventShockDetected))
	assert.Empty(t, r.ListAll())

	assert.Error(t, r.Unregister("wh-missing"))
}

func TestMarkFailedDisablesAtCap(t *testing.T) {
	r := NewRegistry()
	sub := &Subscription{URL: "https://mpcb.example/hook", Events: []EventType{EventAlertRouted}}
	require.NoError(t, r.Register(sub))

	for i := 0; i < maxFailures-1; i++ {
		r.MarkFailed(sub.ID)
	}
	assert.True(t, sub.Active)
	assert.Len(t, r.GetSubscribers(EventAlertRouted), 1)

	r.MarkFailed(sub.ID)
	assert.False(t, sub.Active)
	assert.Empty(t, r.GetSubscribers(EventAlertRouted))
}

func TestWantsPoint(t *testing.T) {
	all := &Subscription{}
	assert.True(t, all.wantsPoint("FACTORY_B"))

	scoped := &Subscription{Points: []string{"FACTORY_B", "FACTORY_D"}}
	assert.True(t, scoped.wantsPoint("FACTORY_B"))
	assert.False(t, scoped.wantsPoint("FACTORY_A"))
}

func TestSignPayload(t *testing.T) {
	sig := SignPayload([]byte(`{"eri":4.2}`), "topsecret")
	assert.Len(t, sig, 64) // hex-encoded sha256
	assert.Equal(t, sig, SignPayload([]byte(`{"eri":4.2}`), "topsecret"))
	assert.NotEqual(t, sig, SignPayload([]byte(`{"eri":4.2}`), "other"))
	assert.NotEqual(t, sig, SignPayload([]byte(`{"eri":4.3}`), "topsecret"))
}
