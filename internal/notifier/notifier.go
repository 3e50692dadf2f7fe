package notifier

import (
	"github.com/scrimlab/overqueue/internal/roster"
)

// Notifier is the escalation and announcement sink consumed by the
// engine. It decouples the engine from the notification provider; the
// chat-platform panels themselves are rendered elsewhere.
type Notifier interface {
	// SendEscalation raises a conflicting-reports escalation for manual
	// admin resolution. It must not broadcast a broad mention.
	SendEscalation(matchID, reason string, dryRun bool) error
	// SendResultSummary announces a settled match with its rating changes.
	SendResultSummary(rec *roster.MatchRecord, changes []roster.RatingChange, dryRun bool) error
	// SendMatchCancelled announces an admin cancellation.
	SendMatchCancelled(matchID string, requeued int, dryRun bool) error
}
