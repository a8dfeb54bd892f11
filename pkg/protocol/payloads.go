package protocol

import "time"

// Message is the wire form of a persisted chat message.
type Message struct {
	ID            string    `json:"id"`
	ListingType   string    `json:"listingType"`
	ListingID     string    `json:"listingId"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
	IsRead        bool      `json:"isRead"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// ConnectionAckPayload confirms a successful handshake.
type ConnectionAckPayload struct {
	ConnectionID string `json:"connectionId"`
	Identity     string `json:"identity"`
	Role         string `json:"role"`
	ListingType  string `json:"listingType"`
	ListingID    string `json:"listingId"`
	Counterpart  string `json:"counterpart,omitempty"`
	Protocol     int    `json:"protocol"`
}

// HistoryPayload carries replayed messages in ascending createdAt order.
type HistoryPayload struct {
	Messages []Message `json:"messages"`
}

// MessagePayload delivers one message (live delivery or sender ack).
type MessagePayload struct {
	Message Message `json:"message"`
}

// ErrorPayload is sent to the originating connection only.
type ErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// WarningPayload signals a non-fatal condition.
type WarningPayload struct {
	Reason string `json:"reason"`
}

// SendMessageParams is the payload of a send-message frame.
type SendMessageParams struct {
	Content       string `json:"content"`
	CorrelationID string `json:"correlationId,omitempty"`
	Counterpart   string `json:"counterpart,omitempty"`
}

// RequestHistoryParams is the payload of a request-history frame.
type RequestHistoryParams struct {
	Counterpart string `json:"counterpart,omitempty"`
}

// CloseConversationParams is the payload of a close-conversation frame.
type CloseConversationParams struct {
	Counterpart string `json:"counterpart,omitempty"`
}
