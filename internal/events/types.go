package events

import "cloud.google.com/go/pubsub"

type client struct {
	client   *pubsub.Client
	teardown func()
}

// EventType represents the type of event/message published on the bus.
type EventType string

const (
	EventQueueUpdated   EventType = "queue-updated"
	EventMatchFormed    EventType = "match-formed"
	EventMatchLive      EventType = "match-live"
	EventMatchSettled   EventType = "match-settled"
	EventMatchCancelled EventType = "match-cancelled"
)

// QueueUpdate is published whenever the queue composition changes.
type QueueUpdate struct {
	CommunityID string   `msgpack:"community_id"`
	Size        int      `msgpack:"size"`
	Eligible    int      `msgpack:"eligible"`
	PlayerIDs   []string `msgpack:"player_ids"`
}

// MatchEvent is published on match lifecycle transitions.
type MatchEvent struct {
	CommunityID string   `msgpack:"community_id"`
	MatchID     string   `msgpack:"match_id"`
	State       string   `msgpack:"state"`
	Result      string   `msgpack:"result,omitempty"`
	MapName     string   `msgpack:"map_name,omitempty"`
	PlayerIDs   []string `msgpack:"player_ids"`
}
