package domain

import "errors"

var (
	ErrConfigLoad      = errors.New("config load failed")
	ErrMemoryLoad      = errors.New("memory load failed")
	ErrMemorySave      = errors.New("memory save failed")
	ErrExternalConnect = errors.New("external connect failed")
	ErrExternalRefresh = errors.New("external refresh failed")
	ErrLoopPanic       = errors.New("unhandled loop error")

	ErrNotConnected    = errors.New("not connected")
	ErrCallInFlight    = errors.New("external call already in flight")
	ErrResultDiscarded = errors.New("external result discarded")
	ErrAlreadyRunning  = errors.New("agent already running")
	ErrShuttingDown    = errors.New("agent is shutting down")
)

// ErrorKind groups errors by how far they are allowed to propagate.
type ErrorKind string

const (
	ErrorKindUnknown         ErrorKind = "unknown"
	ErrorKindConfigLoad      ErrorKind = "config_load"
	ErrorKindMemoryLoad      ErrorKind = "memory_load"
	ErrorKindMemorySave      ErrorKind = "memory_save"
	ErrorKindExternalConnect ErrorKind = "external_connect"
	ErrorKindExternalRefresh ErrorKind = "external_refresh"
	ErrorKindLoop            ErrorKind = "loop"
)

// Fatal reports whether an error of this kind must end the process.
// Everything except configuration loading is contained by the caller.
func (k ErrorKind) Fatal() bool {
	return k == ErrorKindConfigLoad
}

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.Is(err, ErrConfigLoad):
		return ErrorKindConfigLoad
	case errors.Is(err, ErrMemoryLoad):
		return ErrorKindMemoryLoad
	case errors.Is(err, ErrMemorySave):
		return ErrorKindMemorySave
	case errors.Is(err, ErrExternalConnect):
		return ErrorKindExternalConnect
	case errors.Is(err, ErrExternalRefresh):
		return ErrorKindExternalRefresh
	case errors.Is(err, ErrLoopPanic):
		return ErrorKindLoop
	default:
		return ErrorKindUnknown
	}
}

// SourceError is the typed failure returned by an external state source.
type SourceError struct {
	Reason string
}

func (e *SourceError) Error() string {
	if e == nil || e.Reason == "" {
		return "external source failure"
	}
	return e.Reason
}

// FailureReason extracts a human-readable reason from an external failure.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}

	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return sourceErr.Error()
	}

	return err.Error()
}
