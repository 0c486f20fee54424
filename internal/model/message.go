// internal/model/message.go
package model

import "time"

type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

type SenderRole string

const (
	RoleAgent  SenderRole = "agent"
	RoleLead   SenderRole = "lead"
	RoleSystem SenderRole = "system"
)

// TransportMethod is the technical integration behind a channel. Managed API
// transports tolerate higher automatic send volume than unofficial web-client
// style integrations.
type TransportMethod string

const (
	TransportAPI TransportMethod = "api"
	TransportWeb TransportMethod = "web"
)

// Message is one unit of communication in a lead's history. Content is never
// mutated after creation; only status moves.
type Message struct {
	ID                string        `db:"id" json:"id"`
	LeadID            int           `db:"lead_id" json:"lead_id"`
	EnrollmentID      *int          `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Role              SenderRole    `db:"role" json:"role"`
	Channel           Channel       `db:"channel" json:"channel"`
	Content           string        `db:"content" json:"content"`
	Status            MessageStatus `db:"status" json:"status"`
	ProviderMessageID string        `db:"provider_message_id" json:"provider_message_id,omitempty"`
	SentAt            time.Time     `db:"sent_at" json:"sent_at"`
	StatusUpdatedAt   time.Time     `db:"status_updated_at" json:"status_updated_at"`
}

// InboundMessage is the one normalized shape for inbound events regardless of
// origin channel. Adapters translate provider webhook payloads into this
// before anything downstream sees them.
type InboundMessage struct {
	LeadID            int       `json:"lead_id,omitempty"`
	Contact           string    `json:"contact"`
	Content           string    `json:"content"`
	Channel           Channel   `json:"channel"`
	Timestamp         time.Time `json:"timestamp"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
}

// StatusEvent is published on every message status change for any
// UI/observability consumer.
type StatusEvent struct {
	LeadID    int           `json:"lead_id"`
	MessageID string        `json:"message_id"`
	Status    MessageStatus `json:"status"`
}
