package relay

import "errors"

var (
	ErrNotRegistered              = errors.New("not registered, please register first")
	ErrMissingSessionID           = errors.New("sessionId is required")
	ErrInvalidRole                = errors.New("invalid role")
	ErrAuthRequired               = errors.New("authentication token required")
	ErrNotAuthenticated           = errors.New("not authenticated")
	ErrInsufficientPermission     = errors.New("insufficient permissions for pd role")
	ErrControllerAlreadyConnected = errors.New("pd already connected to this session")
	ErrUnauthorized               = errors.New("unauthorized to send tally updates")
	ErrMalformedMessage           = errors.New("invalid JSON format")
)
