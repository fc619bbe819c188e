package types

import "time"

// Event types published on the domain event channel.
const (
	EventUserSignedUp   = "user.signed_up"
	EventUserRoleChange = "user.role_changed"
	EventUserRemoved    = "user.removed"
	EventNewsCreated    = "news.created"
	EventNewsUpdated    = "news.updated"
	EventNewsDeleted    = "news.deleted"
	EventNewsLiked      = "news.liked"
)

// Event is a notification about a completed state change.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`

	// Subject identifies the affected record: an email for user events,
	// an article id for news events.
	Subject string `json:"subject"`

	// Payload carries event specific fields.
	Payload map[string]any `json:"payload,omitempty"`

	// OccurredAt is when the change was committed.
	OccurredAt time.Time `json:"occurred_at"`
}
