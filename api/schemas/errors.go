package schemas

import "errors"

// ErrorCode is a stable, machine readable failure category.
type ErrorCode string

const (
	ErrCodeSnapshotUnavailable   ErrorCode = "SNAPSHOT_UNAVAILABLE"
	ErrCodeNoActiveTab           ErrorCode = "NO_ACTIVE_TAB"
	ErrCodeScriptInjectionFailed ErrorCode = "SCRIPT_INJECTION_FAILED"
	ErrCodePlannerCallFailed     ErrorCode = "PLANNER_CALL_FAILED"
	ErrCodeUnsupportedAction     ErrorCode = "UNSUPPORTED_ACTION"
	ErrCodeElementNotFound       ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeInvalidParameters     ErrorCode = "INVALID_PARAMETERS"
	ErrCodeActionExecutionFailed ErrorCode = "ACTION_EXECUTION_FAILED"
	ErrCodeNamingFailed          ErrorCode = "NAMING_FAILED"
	ErrCodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"
)

var (
	ErrSnapshotUnavailable   = errors.New("page snapshot unavailable")
	ErrNoActiveTab           = errors.New("no active tab found")
	ErrScriptInjectionFailed = errors.New("script injection failed")
	ErrPlannerCallFailed     = errors.New("planner call failed")
	ErrUnsupportedAction     = errors.New("unsupported action")
	ErrElementNotFound       = errors.New("element not found")
	ErrInvalidParameters     = errors.New("invalid action parameters")
	ErrActionExecutionFailed = errors.New("action execution failed")
	ErrNamingFailed          = errors.New("chat naming failed")
	ErrSessionNotFound       = errors.New("session not found")
)

var sentinels = map[ErrorCode]error{
	ErrCodeSnapshotUnavailable:   ErrSnapshotUnavailable,
	ErrCodeNoActiveTab:           ErrNoActiveTab,
	ErrCodeScriptInjectionFailed: ErrScriptInjectionFailed,
	ErrCodePlannerCallFailed:     ErrPlannerCallFailed,
	ErrCodeUnsupportedAction:     ErrUnsupportedAction,
	ErrCodeElementNotFound:       ErrElementNotFound,
	ErrCodeInvalidParameters:     ErrInvalidParameters,
	ErrCodeActionExecutionFailed: ErrActionExecutionFailed,
	ErrCodeNamingFailed:          ErrNamingFailed,
	ErrCodeSessionNotFound:       ErrSessionNotFound,
}

// codePrecedence orders codes most specific first, so that a snapshot failure
// wrapping ErrNoActiveTab reports NO_ACTIVE_TAB.
var codePrecedence = []ErrorCode{
	ErrCodeNoActiveTab,
	ErrCodeScriptInjectionFailed,
	ErrCodeSnapshotUnavailable,
	ErrCodeElementNotFound,
	ErrCodeUnsupportedAction,
	ErrCodeInvalidParameters,
	ErrCodePlannerCallFailed,
	ErrCodeNamingFailed,
	ErrCodeSessionNotFound,
}

// ActionError is returned by the browser host when an action cannot be
// performed. Every ActionError also matches ErrActionExecutionFailed.
type ActionError struct {
	Code    ErrorCode
	Action  string
	Message string
	Err     error
}

// NewActionError builds an ActionError. message is user facing and ends up in
// the session log verbatim.
func NewActionError(code ErrorCode, action, message string, cause error) *ActionError {
	return &ActionError{Code: code, Action: action, Message: message, Err: cause}
}

func (e *ActionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if s, ok := sentinels[e.Code]; ok {
		return s.Error()
	}
	return string(e.Code)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Is maps the error code onto the package sentinels.
func (e *ActionError) Is(target error) bool {
	if target == ErrActionExecutionFailed {
		return true
	}
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// CodeOf extracts the ErrorCode of err, falling back to
// ErrCodeActionExecutionFailed for unclassified errors.
func CodeOf(err error) ErrorCode {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	for _, code := range codePrecedence {
		if errors.Is(err, sentinels[code]) {
			return code
		}
	}
	return ErrCodeActionExecutionFailed
}
