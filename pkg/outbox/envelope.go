package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. Webhook-driven changes carry
// Source "provider" and no user.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Source string     `json:"source"`
}

// Actor sources.
const (
	SourceUser     = "user"
	SourceProvider = "provider"
	SourceSystem   = "system"
)

// UserActor builds an actor for a request made by an authenticated user.
func UserActor(userID uuid.UUID) *ActorRef {
	id := userID
	return &ActorRef{UserID: &id, Source: SourceUser}
}

// ProviderActor builds an actor for a webhook-driven change.
func ProviderActor() *ActorRef {
	return &ActorRef{Source: SourceProvider}
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
