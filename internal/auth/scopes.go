package auth

// Scopes understood by the HTTP API.
const (
	ScopeMessagesWrite = "messages:write"
	ScopeInstancesRead = "instances:read"
)
