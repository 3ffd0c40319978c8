package scxmlgo

import "fmt"

// ParseError reports structural failures discovered while building the
// node index (duplicate IDs, wrong root element, malformed attribute
// combinations). Structural errors never enter the event model; Load
// returns them directly (spec.md §7 "Structural").
type ParseError struct {
	Errors []string
}

func (e *ParseError) Error() string {
	if len(e.Errors) == 1 {
		return "scxmlgo: parse error: " + e.Errors[0]
	}
	return fmt.Sprintf("scxmlgo: %d parse errors, first: %s", len(e.Errors), e.Errors[0])
}

// ConfigurationError reports an active-state-chain lookup miss during
// entry/exit set resolution (spec.md §7 "Configuration"). Converted to an
// error.statechart.path-not-found event rather than propagated.
type ConfigurationError struct {
	Path string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scxmlgo: state path not found: %q", e.Path)
}

// ExecutionError reports a guard/condition or executable-content failure
// (spec.md §7 "Execution"). Carries the offending node's description and
// is always converted into an error.execution internal event; it never
// propagates out of run().
type ExecutionError struct {
	Node    string
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scxmlgo: execution error in %s: %s: %v", e.Node, e.Message, e.Cause)
	}
	return fmt.Sprintf("scxmlgo: execution error in %s: %s", e.Node, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// CommunicationError reports a <send> dispatch failure (spec.md §7
// "Communication"). Converted to an error.communication platform event.
type CommunicationError struct {
	SendID  string
	Message string
	Cause   error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("scxmlgo: communication error (sendid=%s): %s", e.SendID, e.Message)
}

func (e *CommunicationError) Unwrap() error { return e.Cause }

// errorEventName maps an internal Go error into the dotted SCXML error
// event name conventions from spec.md §6, defaulting to error.execution.
func errorEventName(err error) string {
	switch err.(type) {
	case *CommunicationError:
		return "error.communication"
	case *ConfigurationError:
		return "error.statechart.path-not-found"
	default:
		return "error.execution"
	}
}
