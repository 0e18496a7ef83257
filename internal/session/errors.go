package session

import "errors"

var (
	// ErrAlreadyActive is returned when the initiator already owns a live session.
	ErrAlreadyActive = errors.New("initiator already has an active session")
	// ErrParticipantBusy is returned when either player is already seated in another live session.
	ErrParticipantBusy = errors.New("participant is already in an active session")
	// ErrSelfChallenge is returned when a player challenges themselves.
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	// ErrInvalidBestOf is returned for even, non-positive or oversized series lengths.
	ErrInvalidBestOf = errors.New("best-of must be a positive odd number")
	// ErrShuttingDown is returned once the coordinator has stopped accepting sessions.
	ErrShuttingDown = errors.New("coordinator is shutting down")

	// ErrAcceptTimeout is the cancellation cause when the acceptance window closes.
	ErrAcceptTimeout = errors.New("challenge acceptance timed out")
	// ErrMoveTimeout is the cancellation cause when a round's input window closes.
	ErrMoveTimeout = errors.New("move timed out")

	// ErrCollaboratorUnavailable wraps failures of the messaging layer or the rating store.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
