package broker

import "sync"

// Publisher is the outbound half of the broker connection; it is all the
// dispatch core needs to send commands.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// StatusReporter is implemented by publishers that know whether a live
// broker session is up. The health endpoint probes it.
type StatusReporter interface {
	Connected() bool
}

// Swappable is the Publisher the dispatch core holds for the life of the
// process. It starts on the no-op stand-in and is swapped to the live
// client once (and if) the broker connection comes up, so the core never
// cares whether the broker was reachable at boot.
type Swappable struct {
	mu    sync.RWMutex
	inner Publisher
}

// NewSwappable returns a Swappable delegating to initial.
func NewSwappable(initial Publisher) *Swappable {
	if initial == nil {
		panic("broker.NewSwappable: initial publisher must not be nil")
	}
	return &Swappable{inner: initial}
}

// Swap replaces the delegate. In-flight publishes finish on the old one.
func (s *Swappable) Swap(p Publisher) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.inner = p
	s.mu.Unlock()
}

// Publish forwards to the current delegate.
func (s *Swappable) Publish(topic string, payload []byte) error {
	s.mu.RLock()
	p := s.inner
	s.mu.RUnlock()
	return p.Publish(topic, payload)
}

// Connected reports the delegate's link state; a delegate that cannot say
// counts as disconnected.
func (s *Swappable) Connected() bool {
	s.mu.RLock()
	p := s.inner
	s.mu.RUnlock()
	if reporter, ok := p.(StatusReporter); ok {
		return reporter.Connected()
	}
	return false
}
