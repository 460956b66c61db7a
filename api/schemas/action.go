package schemas

import (
	"fmt"
	"strings"
)

// Action names understood by the browser host.
const (
	ActionClick    = "click"
	ActionType     = "type"
	ActionNavigate = "navigate"
	// ActionNone is the planner sentinel for "nothing to do right now".
	ActionNone = "none"
)

// Action is a single planner proposed browser interaction.
type Action interface {
	// Name returns the wire name of the action, e.g. "click".
	Name() string
	// Params returns the action specific fields as they are logged.
	Params() map[string]any
	// Validate checks that the required fields are present.
	Validate() error
}

// ClickAction clicks the first element matching Selector.
type ClickAction struct {
	Selector string
}

func (a ClickAction) Name() string { return ActionClick }
func (a ClickAction) Params() map[string]any {
	return map[string]any{"selector": a.Selector}
}
func (a ClickAction) Validate() error {
	if a.Selector == "" {
		return NewActionError(ErrCodeInvalidParameters, a.Name(), "click action requires a 'selector'", nil)
	}
	return nil
}

// TypeAction sets the value of an input or textarea and fires an input event.
// An empty Text clears the field.
type TypeAction struct {
	Selector string
	Text     string
	// TextMissing is set by ParseAction when the planner omitted the text.
	TextMissing bool
}

func (a TypeAction) Name() string { return ActionType }
func (a TypeAction) Params() map[string]any {
	return map[string]any{"selector": a.Selector, "text": a.Text}
}
func (a TypeAction) Validate() error {
	if a.Selector == "" {
		return NewActionError(ErrCodeInvalidParameters, a.Name(), "type action requires a 'selector'", nil)
	}
	if a.TextMissing {
		return NewActionError(ErrCodeInvalidParameters, a.Name(), "type action requires a 'text'", nil)
	}
	return nil
}

// NavigateAction loads URL in the active tab.
type NavigateAction struct {
	URL string
}

func (a NavigateAction) Name() string { return ActionNavigate }
func (a NavigateAction) Params() map[string]any {
	return map[string]any{"url": a.URL}
}
func (a NavigateAction) Validate() error {
	if a.URL == "" {
		return NewActionError(ErrCodeInvalidParameters, a.Name(), "navigate action requires a 'url'", nil)
	}
	return nil
}

// NoAction is the planner's "stop and wait" answer. It is never executed.
type NoAction struct{}

func (NoAction) Name() string           { return ActionNone }
func (NoAction) Params() map[string]any { return nil }
func (NoAction) Validate() error        { return nil }

// OpaqueAction carries any action name the host has no variant for. Risky
// names such as delete or publish arrive here too; they pass through the
// confirmation gate and are rejected by the host as unsupported.
type OpaqueAction struct {
	ActionName string
	Raw        map[string]any
}

func (a OpaqueAction) Name() string           { return a.ActionName }
func (a OpaqueAction) Params() map[string]any { return cloneMap(a.Raw) }
func (a OpaqueAction) Validate() error        { return nil }

// ParseAction turns a planner action name and its details into a typed
// variant. It never fails: missing fields surface from Validate at execution
// time, and unknown names become OpaqueAction. Surrounding whitespace in the
// name is ignored.
func ParseAction(name string, details map[string]any) Action {
	name = strings.TrimSpace(name)
	switch name {
	case ActionClick:
		return ClickAction{Selector: stringField(details, "selector")}
	case ActionType:
		_, hasText := details["text"]
		return TypeAction{
			Selector:    stringField(details, "selector"),
			Text:        stringField(details, "text"),
			TextMissing: !hasText,
		}
	case ActionNavigate:
		return NavigateAction{URL: stringField(details, "url")}
	case ActionNone, "":
		return NoAction{}
	default:
		return OpaqueAction{ActionName: name, Raw: cloneMap(details)}
	}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
