// Package events fans solve progress out to stream subscribers.
package events

import (
    "sync"
)

// Event types published for a solve.
const (
    SolveStarted   = "solve.started"
    SolveImproved  = "solve.improved"
    SolveCompleted = "solve.completed"
    SolveFailed    = "solve.failed"
)

type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Final reports whether no further events follow e for the same solve.
func (e Event) Final() bool { return e.Type == SolveCompleted || e.Type == SolveFailed }

// EventBroker routes events by solve id.
type EventBroker interface {
    Subscribe(solveID string) chan Event
    Unsubscribe(solveID string, ch chan Event)
    Publish(solveID string, evt Event)
}

// Broker is the in-process EventBroker.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // solveID -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(solveID string) chan Event {
    ch := make(chan Event, 16)
    b.mu.Lock()
    if b.subs[solveID] == nil { b.subs[solveID] = map[chan Event]struct{}{} }
    b.subs[solveID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

// Unsubscribe detaches and closes ch. Calling it twice is a no-op.
func (b *Broker) Unsubscribe(solveID string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[solveID]
    if _, ok := m[ch]; !ok {
        return
    }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, solveID) }
    close(ch)
}

// Publish never blocks; slow subscribers miss events.
func (b *Broker) Publish(solveID string, evt Event) {
    b.mu.Lock()
    for ch := range b.subs[solveID] {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// Subscribers counts open subscriptions for solveID.
func (b *Broker) Subscribers(solveID string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[solveID])
}
