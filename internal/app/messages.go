package app

import (
	"time"

	"github.com/jwulff/transcribe/internal/session"
)

// SessionRestoredMsg is sent once the persisted credential pair is loaded.
type SessionRestoredMsg struct {
	Snapshot session.Snapshot
	Err      error
}

// SessionValidatedMsg carries the outcome of the /auth/me check.
type SessionValidatedMsg struct {
	Snapshot session.Snapshot
	Err      error
}

// AuthResultMsg carries the outcome of a login.
type AuthResultMsg struct {
	Snapshot session.Snapshot
	Err      error
}

// RegisterResultMsg carries the outcome of a registration.
type RegisterResultMsg struct {
	Email   string
	Message string
	Err     error
}

// ResendResultMsg carries the outcome of a verification resend.
type ResendResultMsg struct {
	Err error
}

// LoggedOutMsg is sent after the session was cleared.
type LoggedOutMsg struct {
	Err error
}

// CycleEventMsg signals that the cycle changed. The model re-reads the
// orchestrator state.
type CycleEventMsg struct{}

// CycleResultMsg carries the error of a cycle action.
type CycleResultMsg struct {
	Action string
	Err    error
}

// SavedMsg carries the outcome of an export to disk.
type SavedMsg struct {
	Path string
	Err  error
}

// RecordingTickMsg refreshes the elapsed recording time.
type RecordingTickMsg struct {
	Time time.Time
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
