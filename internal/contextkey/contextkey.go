package contextkey

// Key is the private type for context values set by middleware.
type Key int

const (
	// ContextKeyRequestID carries the uuid.UUID assigned to an HTTP request.
	ContextKeyRequestID Key = iota
	// ContextKeyUserID carries the authenticated user id (uint32).
	ContextKeyUserID
)
