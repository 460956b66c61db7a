// internal/agent/errors.go
package agent

import "errors"

var (
	// ErrTickInFlight is returned when a tick is requested for a session that
	// is already running one.
	ErrTickInFlight = errors.New("a tick is already in flight for this session")
	// ErrConfirmedActionRunning is returned by Start while a confirmed risky
	// action is still executing.
	ErrConfirmedActionRunning = errors.New("a confirmed action is still executing")
	// ErrConfirmationPending is returned by Start while a risky action waits
	// for the user.
	ErrConfirmationPending = errors.New("a risky action is awaiting confirmation")
	// ErrNoPendingConfirmation is returned by Confirm and Cancel when there is
	// nothing to resolve.
	ErrNoPendingConfirmation = errors.New("no action is awaiting confirmation")
	// ErrConfirmationResolved is returned when a confirmation is resolved twice.
	ErrConfirmationResolved = errors.New("confirmation already resolved")
	// ErrInvalidTransition is returned when a user command does not apply to
	// the current session status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrEmptyMessage is returned by SendMessage for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrControllerClosed is returned after Close.
	ErrControllerClosed = errors.New("agent controller is closed")
)
