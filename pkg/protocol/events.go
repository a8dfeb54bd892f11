package protocol

// Event names pushed from server to client.
const (
	EventConnectionAck = "connection-ack"
	EventHistory       = "history"
	EventMessage       = "message"
	EventError         = "error"
	EventWarning       = "warning"
)

// Event names sent from client to server.
const (
	EventSendMessage       = "send-message"
	EventRequestHistory    = "request-history"
	EventCloseConversation = "close-conversation"
)

// Connect parameters accepted on the WebSocket upgrade request (query string).
const (
	ParamIdentity    = "identity"
	ParamListingType = "listingType"
	ParamListingID   = "listingId"
	ParamRole        = "role"
	ParamCounterpart = "counterpart"
	ParamToken       = "token"
)

// Error codes carried in ErrorPayload.Code.
const (
	ErrCodeInvalidHandshake    = "invalid_handshake"
	ErrCodeEmptyContent        = "empty_content"
	ErrCodeContentTooLong      = "content_too_long"
	ErrCodeRecipientUnresolved = "recipient_unresolved"
	ErrCodePersistence         = "persistence_failure"
	ErrCodeListingLookup       = "listing_lookup_failure"
	ErrCodeSocket              = "socket_error"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeUnknownEvent        = "unknown_event"
	ErrCodeInternal            = "internal"
)
