// Package voice defines the capability the engine consumes for voice
// channel presence and moves. Implementations live in the gateway that
// owns the chat platform connection; the engine only knows this surface.
package voice

import "context"

// Status of a match player relative to the match voice channels.
type Status string

const (
	StatusInVC         Status = "in_vc"
	StatusMissing      Status = "missing"
	StatusDisconnected Status = "disconnected"
)

// Mover queries presence and moves players between voice channels.
// Both operations are best-effort from the engine's point of view:
// failures are logged and never roll back a state transition.
type Mover interface {
	// IsConnected reports whether the player is currently in the given
	// voice channel.
	IsConnected(ctx context.Context, playerID, channelID string) (bool, error)
	// Move relocates the player to the given voice channel.
	Move(ctx context.Context, playerID, channelID string) error
}
