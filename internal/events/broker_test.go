package events

import (
    "context"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/sirupsen/logrus"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("s1")
    other := b.Subscribe("s2")
    require.Equal(t, 1, b.Subscribers("s1"))

    b.Publish("s1", Event{Type: SolveImproved, Data: map[string]any{"cost": 1}})
    select {
    case got := <-ch:
        assert.Equal(t, SolveImproved, got.Type)
        assert.Equal(t, 1, got.Data["cost"])
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }
    select {
    case evt := <-other:
        t.Fatalf("unexpected event on other solve: %+v", evt)
    default:
    }

    b.Unsubscribe("s1", ch)
    b.Unsubscribe("s1", ch)
    _, ok := <-ch
    assert.False(t, ok, "channel should be closed after unsubscribe")
    assert.Zero(t, b.Subscribers("s1"))
}

func TestBrokerPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("s1")
    defer b.Unsubscribe("s1", ch)
    done := make(chan struct{})
    go func() {
        for i := 0; i < 100; i++ {
            b.Publish("s1", Event{Type: SolveImproved})
        }
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("publish blocked")
    }
    assert.Len(t, ch, cap(ch))
}

func TestEventFinal(t *testing.T) {
    assert.True(t, Event{Type: SolveCompleted}.Final())
    assert.True(t, Event{Type: SolveFailed}.Final())
    assert.False(t, Event{Type: SolveImproved}.Final())
}

func TestRedisBrokerRoundTrip(t *testing.T) {
    mr := miniredis.RunT(t)
    log, _ := test.NewNullLogger()
    b, err := NewRedisBroker(context.Background(), "redis://"+mr.Addr(), log)
    require.NoError(t, err)
    defer b.Close()
    require.NoError(t, b.Ping(context.Background()))

    ch := b.Subscribe("abc")
    b.Publish("abc", Event{Type: SolveCompleted, Data: map[string]any{"totalDistanceKm": 400.0}})
    select {
    case got := <-ch:
        assert.Equal(t, SolveCompleted, got.Type)
        assert.Equal(t, 400.0, got.Data["totalDistanceKm"])
    case <-time.After(2 * time.Second):
        t.Fatal("timeout waiting for redis event")
    }

    b.Unsubscribe("abc", ch)
    select {
    case _, ok := <-ch:
        assert.False(t, ok)
    case <-time.After(2 * time.Second):
        t.Fatal("channel not closed after unsubscribe")
    }
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
    _, err := NewRedisBroker(context.Background(), "not a url", logrus.New())
    require.Error(t, err)
}
