package metrics

import "sync"

// Mock is a mock implementation of the Metrics interface for testing.
// It is safe for concurrent use.
type Mock struct {
	mu               sync.Mutex
	queueJoins       int
	queueLeaves      int
	matchesFormed    int
	matchesSettled   int
	reportsRejected  int
	commandDurations []float64
	notifSent        int
	notifFailed      int
	startupTime      float64
}

// NewMock creates a new mock instance.
func NewMock() *Mock {
	return &Mock{
		commandDurations: make([]float64, 0),
	}
}

func (m *Mock) IncQueueJoins() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueJoins++
}

func (m *Mock) IncQueueLeaves() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueLeaves++
}

func (m *Mock) IncMatchesFormed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesFormed++
}

func (m *Mock) IncMatchesSettled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesSettled++
}

func (m *Mock) IncReportsRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportsRejected++
}

func (m *Mock) ObserveCommandDuration(duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandDurations = append(m.commandDurations, duration)
}

func (m *Mock) IncNotifSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifSent++
}

func (m *Mock) IncNotifFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifFailed++
}

func (m *Mock) SetStartupTime(duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startupTime = duration
}

// QueueJoins returns the number of times IncQueueJoins was called.
func (m *Mock) QueueJoins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueJoins
}

// MatchesFormed returns the number of times IncMatchesFormed was called.
func (m *Mock) MatchesFormed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesFormed
}

// MatchesSettled returns the number of times IncMatchesSettled was called.
func (m *Mock) MatchesSettled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesSettled
}

// ReportsRejected returns the number of times IncReportsRejected was called.
func (m *Mock) ReportsRejected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportsRejected
}

// NotifSent returns the number of times IncNotifSent was called.
func (m *Mock) NotifSent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifSent
}

// NotifFailed returns the number of times IncNotifFailed was called.
func (m *Mock) NotifFailed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifFailed
}
