package notifier

import (
	"sync"

	"github.com/scrimlab/overqueue/internal/roster"
)

// Mock is a mock implementation of the Notifier interface for testing.
// It is safe for concurrent use.
type Mock struct {
	mu sync.Mutex

	// Spies for method calls
	SendEscalationFunc     func(matchID, reason string, dryRun bool) error
	SendResultSummaryFunc  func(rec *roster.MatchRecord, changes []roster.RatingChange, dryRun bool) error
	SendMatchCancelledFunc func(matchID string, requeued int, dryRun bool) error

	// Call records
	SendEscalationCalls []struct {
		MatchID string
		Reason  string
	}
	SendResultSummaryCalls []struct {
		Rec     *roster.MatchRecord
		Changes []roster.RatingChange
	}
	SendMatchCancelledCalls []struct {
		MatchID  string
		Requeued int
	}
}

// NewMock creates a new mock instance.
func NewMock() *Mock {
	return &Mock{}
}

// Reset clears all call records.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendEscalationCalls = nil
	m.SendResultSummaryCalls = nil
	m.SendMatchCancelledCalls = nil
}

func (m *Mock) SendEscalation(matchID, reason string, dryRun bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendEscalationCalls = append(m.SendEscalationCalls, struct {
		MatchID string
		Reason  string
	}{matchID, reason})
	if m.SendEscalationFunc != nil {
		return m.SendEscalationFunc(matchID, reason, dryRun)
	}
	return nil
}

func (m *Mock) SendResultSummary(rec *roster.MatchRecord, changes []roster.RatingChange, dryRun bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendResultSummaryCalls = append(m.SendResultSummaryCalls, struct {
		Rec     *roster.MatchRecord
		Changes []roster.RatingChange
	}{rec, changes})
	if m.SendResultSummaryFunc != nil {
		return m.SendResultSummaryFunc(rec, changes, dryRun)
	}
	return nil
}

func (m *Mock) SendMatchCancelled(matchID string, requeued int, dryRun bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendMatchCancelledCalls = append(m.SendMatchCancelledCalls, struct {
		MatchID  string
		Requeued int
	}{matchID, requeued})
	if m.SendMatchCancelledFunc != nil {
		return m.SendMatchCancelledFunc(matchID, requeued, dryRun)
	}
	return nil
}
