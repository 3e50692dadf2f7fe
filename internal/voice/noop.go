package voice

import "context"

// noop is used when the process runs without a chat gateway attached.
// Presence reads as absent and moves succeed silently, so lifecycle
// transitions behave exactly as with an unreachable voice system.
type noop struct{}

// NewNoop returns a Mover without a backing voice system.
func NewNoop() Mover {
	return noop{}
}

func (noop) IsConnected(ctx context.Context, playerID, channelID string) (bool, error) {
	return false, nil
}

func (noop) Move(ctx context.Context, playerID, channelID string) error {
	return nil
}
