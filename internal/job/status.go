// Package job submits audio artifacts to the backend and follows the
// resulting jobs to a terminal status.
package job

import "time"

// Status is the backend's job status.
type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case Pending:
		return 0
	case Processing:
		return 1
	case Completed, Failed:
		return 2
	}
	return -1
}

// ParseStatus reports whether s is a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.rank() >= 0
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// Advance returns the status after observing next. Statuses only move
// forward; a regression or a change after a terminal status is ignored and
// reported as false.
func Advance(cur, next Status) (Status, bool) {
	if cur.Terminal() || next.rank() < 0 {
		return cur, false
	}
	if next.rank() < cur.rank() {
		return cur, false
	}
	return next, next != cur
}

// Job is a submitted artifact.
type Job struct {
	ID          string
	ArtifactID  string
	Status      Status
	SubmittedAt time.Time
}
