package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/nimbus/internal/models"
)

func TestPublishPhaseReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()
	require.Equal(t, 2, b.SubscriberCount())

	b.PublishPhase(models.PhaseIdle, models.PhaseRequesting)

	for _, sub := range []*Subscriber{a, c} {
		select {
		case ev := <-sub.Events:
			assert.Equal(t, EventTypePhase, ev.Type)
			assert.Equal(t, models.PhaseIdle, ev.FromPhase)
			assert.Equal(t, models.PhaseRequesting, ev.ToPhase)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishStats(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	sub := b.Subscribe()
	b.PublishStats(models.StatsSample{FrameRate: 60, BitrateKbps: 15000})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, EventTypeStats, ev.Type)
		require.NotNil(t, ev.Stats)
		assert.Equal(t, 15000, ev.Stats.BitrateKbps)
	case <-time.After(time.Second):
		t.Fatal("no stats event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe()

	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Events
	assert.False(t, open)

	// Unsubscribing again is harmless.
	b.Unsubscribe(sub.ID)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	sub := b.Subscribe()
	// Fill the buffer and then some; publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			b.PublishPhase(models.PhaseIdle, models.PhaseRequesting)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, sub.Events, 100)
}
