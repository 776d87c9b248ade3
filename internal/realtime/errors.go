package realtime

import "errors"

// Failure taxonomy for connection and room operations. Authentication errors
// abort the connection attempt before any registry entry exists; everything
// else is reported back to the originating connection as an error event.
var (
	ErrUnauthenticated         = errors.New("not authenticated")
	ErrInvalidCredential       = errors.New("could not validate credentials")
	ErrIdentityNotFound        = errors.New("user not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrAccessDenied            = errors.New("access denied")
	ErrNotHost                 = errors.New("only host can update session")
	ErrBadRequest              = errors.New("invalid event payload")
	ErrCollaboratorUnavailable = errors.New("service temporarily unavailable")
)
