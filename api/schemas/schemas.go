package schemas

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the hosting product the agent is automating.
type Platform string

const (
	PlatformFirebase Platform = "Firebase"
	PlatformReplit   Platform = "Replit"
	PlatformVercel   Platform = "Vercel"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformFirebase, PlatformReplit, PlatformVercel}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePlatform resolves a user supplied platform name, ignoring case.
func ParsePlatform(s string) (Platform, error) {
	for _, known := range Platforms {
		if strings.EqualFold(strings.TrimSpace(s), string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q (expected one of Firebase, Replit, Vercel)", s)
}

// SessionStatus is the lifecycle state of an agent session.
type SessionStatus string

const (
	StatusPlanning  SessionStatus = "Planning"
	StatusRunning   SessionStatus = "Running"
	StatusPaused    SessionStatus = "Paused"
	StatusCompleted SessionStatus = "Completed"
	StatusError     SessionStatus = "Error"
)

// LogType classifies a session log entry.
type LogType string

const (
	LogPlan         LogType = "plan"
	LogAction       LogType = "action"
	LogInfo         LogType = "info"
	LogError        LogType = "error"
	LogConfirmation LogType = "confirmation"
	LogUser         LogType = "user"
)

// LogDetails is attached to action and confirmation entries. Params holds the
// action specific fields and is serialized as "details" to match the stored
// state format.
type LogDetails struct {
	Action    string         `json:"action"`
	Reasoning string         `json:"reasoning,omitempty"`
	Params    map[string]any `json:"details,omitempty"`
}

// LogEntry is one immutable line of a session's history.
type LogEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      LogType     `json:"type"`
	Message   string      `json:"message"`
	Details   *LogDetails `json:"details,omitempty"`
}

// Session is the durable record of one agent conversation.
type Session struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Goal        string        `json:"goal"`
	Platform    Platform      `json:"platform"`
	Status      SessionStatus `json:"status"`
	Logs        []LogEntry    `json:"logs"`
	LastUpdated time.Time     `json:"lastUpdated"`
	CurrentStep int           `json:"currentStep"`
	TotalSteps  int           `json:"totalSteps"`
}

// State is the persisted blob holding every session and the active pointer.
type State struct {
	Sessions        []Session `json:"sessions"`
	ActiveSessionID string    `json:"activeSessionId,omitempty"`
}

// NewSession carries the caller supplied fields for a session being created.
type NewSession struct {
	Name     string
	Goal     string
	Platform Platform
	Status   SessionStatus
}

// LogInput is a log entry before the store assigns its id and timestamp.
type LogInput struct {
	Type    LogType
	Message string
	Details *LogDetails
}

// SessionPatch is a shallow merge applied by the store. Nil fields are left
// untouched. When IfStatus is non-empty the patch is only applied if the
// current status is one of the listed values.
type SessionPatch struct {
	Name          *string
	Goal          *string
	Status        *SessionStatus
	CurrentStep   *int
	TotalSteps    *int
	IncrementStep bool
	IfStatus      []SessionStatus
}

// StatusPtr is a small helper for building patches inline.
func StatusPtr(s SessionStatus) *SessionStatus { return &s }

// StringPtr is a small helper for building patches inline.
func StringPtr(s string) *string { return &s }

// IntPtr is a small helper for building patches inline.
func IntPtr(i int) *int { return &i }

// Clone returns a deep copy of the session. Callers outside the store only
// ever see clones.
func (s Session) Clone() Session {
	out := s
	if s.Logs != nil {
		out.Logs = make([]LogEntry, len(s.Logs))
		for i, entry := range s.Logs {
			out.Logs[i] = entry.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the entry, including its details map.
func (e LogEntry) Clone() LogEntry {
	out := e
	if e.Details != nil {
		d := *e.Details
		d.Params = cloneMap(e.Details.Params)
		out.Details = &d
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
