package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvents_SubscribeOrderAndCancel(t *testing.T) {
	events := NewEvents()

	var calls []string
	cancelA := events.Subscribe(func(LogoutEvent) { calls = append(calls, "a") })
	events.Subscribe(func(LogoutEvent) { calls = append(calls, "b") })

	events.Publish(LogoutEvent{Path: PathProfile})
	assert.Equal(t, []string{"a", "b"}, calls)

	cancelA()
	cancelA()
	calls = nil
	events.Publish(LogoutEvent{Path: PathProfile})
	assert.Equal(t, []string{"b"}, calls)
}

func TestEvents_CancelFromInsideHandler(t *testing.T) {
	events := NewEvents()

	count := 0
	var cancel func()
	cancel = events.Subscribe(func(LogoutEvent) {
		count++
		cancel()
	})

	events.Publish(LogoutEvent{})
	events.Publish(LogoutEvent{})
	assert.Equal(t, 1, count)
}

func TestEvents_PublishWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() { NewEvents().Publish(LogoutEvent{}) })
}
