package channel

import (
    "sort"
    "sync"
)

// FilterSink receives subscription filter changes. transport.SubSocket
// satisfies it.
type FilterSink interface {
    AddFilter(prefix []byte)
    RemoveFilter(prefix []byte)
}

// Subscriptions tracks the channels a member listens to and mirrors them as
// prefix filters on a sink.
type Subscriptions struct {
    mu    sync.Mutex
    names map[string]struct{}
}

func NewSubscriptions() *Subscriptions {
    return &Subscriptions{names: make(map[string]struct{})}
}

// Add validates name, installs its filter on sink and records it. Adding an
// existing channel is a no-op for the sink.
func (s *Subscriptions) Add(sink FilterSink, name string) error {
    if err := Validate(name); err != nil { return err }
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.names[name]; ok { return nil }
    sink.AddFilter(Filter(name))
    s.names[name] = struct{}{}
    return nil
}

// Remove validates name and drops its filter from sink. Removing an unknown
// channel is a no-op for the sink.
func (s *Subscriptions) Remove(sink FilterSink, name string) error {
    if err := Validate(name); err != nil { return err }
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.names[name]; !ok { return nil }
    sink.RemoveFilter(Filter(name))
    delete(s.names, name)
    return nil
}

func (s *Subscriptions) Has(name string) bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    _, ok := s.names[name]
    return ok
}

// List returns the subscribed channels in lexical order.
func (s *Subscriptions) List() []string {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]string, 0, len(s.names))
    for n := range s.names { out = append(out, n) }
    sort.Strings(out)
    return out
}

func (s *Subscriptions) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.names)
}

// Clear forgets every channel without touching any sink; the socket the
// filters lived on is expected to be closed already.
func (s *Subscriptions) Clear() {
    s.mu.Lock()
    s.names = make(map[string]struct{})
    s.mu.Unlock()
}
