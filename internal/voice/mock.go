package voice

import (
	"context"
	"sync"
)

// MockMover is a mock implementation of Mover for testing.
// It is safe for concurrent use.
type MockMover struct {
	mu sync.Mutex

	// Spies for method calls
	IsConnectedFunc func(ctx context.Context, playerID, channelID string) (bool, error)
	MoveFunc        func(ctx context.Context, playerID, channelID string) error

	// Call records
	IsConnectedCalls []struct {
		PlayerID  string
		ChannelID string
	}
	MoveCalls []struct {
		PlayerID  string
		ChannelID string
	}
}

// NewMock creates a new mock Mover.
func NewMock() *MockMover {
	return &MockMover{}
}

// Reset clears all call records.
func (m *MockMover) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsConnectedCalls = nil
	m.MoveCalls = nil
}

func (m *MockMover) IsConnected(ctx context.Context, playerID, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IsConnectedCalls = append(m.IsConnectedCalls, struct {
		PlayerID  string
		ChannelID string
	}{playerID, channelID})
	if m.IsConnectedFunc != nil {
		return m.IsConnectedFunc(ctx, playerID, channelID)
	}
	return false, nil
}

func (m *MockMover) Move(ctx context.Context, playerID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MoveCalls = append(m.MoveCalls, struct {
		PlayerID  string
		ChannelID string
	}{playerID, channelID})
	if m.MoveFunc != nil {
		return m.MoveFunc(ctx, playerID, channelID)
	}
	return nil
}
