package capture

import (
	"context"
	"sync"
)

// MockRecognizer delivers scripted results. Tests can also start a session
// with no script and drive delivery by hand through the returned
// MockSession.
type MockRecognizer struct {
	mu       sync.Mutex
	StartErr error
	script   []Result
	active   bool
	stops    int
}

// NewMockRecognizer scripts one result per successive session.
func NewMockRecognizer(script ...Result) *MockRecognizer {
	return &MockRecognizer{script: script}
}

func (m *MockRecognizer) Start(_ context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	if m.active {
		return nil, ErrAlreadyActive
	}
	m.active = true

	sess := &MockSession{results: make(chan Result, 1), owner: m}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		sess.deliverLocked(next)
	}
	return sess, nil
}

// Stops reports how many sessions were stopped before delivering.
func (m *MockRecognizer) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *MockRecognizer) release(stopped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	if stopped {
		m.stops++
	}
}

// MockSession is the session type returned by MockRecognizer.
type MockSession struct {
	owner    *MockRecognizer
	results  chan Result
	doneOnce sync.Once
}

func (s *MockSession) Result() <-chan Result { return s.results }

// Deliver completes the session with the given result.
func (s *MockSession) Deliver(res Result) {
	s.doneOnce.Do(func() {
		s.results <- res
		close(s.results)
		s.owner.release(false)
	})
}

func (s *MockSession) Stop() {
	s.doneOnce.Do(func() {
		close(s.results)
		s.owner.release(true)
	})
}

func (s *MockSession) deliverLocked(res Result) {
	s.doneOnce.Do(func() {
		s.results <- res
		close(s.results)
		s.owner.active = false
	})
}
