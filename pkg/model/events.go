package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published to NATS. Payload carries
// the event-specific body; headers mirror the identifying fields so consumers
// can route without decoding.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlationId"`
	SessionID     string          `json:"sessionId"`
	ChainID       int64           `json:"chainId"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"eventType"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}
