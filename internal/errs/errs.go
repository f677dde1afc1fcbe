// Package errs defines the typed failures surfaced by the transcription
// pipeline. Callers branch on them with errors.As.
package errs

import "fmt"

// ValidationError is a local precondition failure. No network call was made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthError means the caller is not authenticated, not verified, or the
// backend rejected the credentials.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string { return e.Msg }

func (e *AuthError) Unwrap() error { return e.Err }

// DeviceError means the capture hardware is unavailable or access was denied.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// SubmissionError means the backend rejected an upload.
type SubmissionError struct {
	StatusCode int
	Msg        string
	Err        error
}

func (e *SubmissionError) Error() string { return e.Msg }

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is a transport or decoding failure while checking job status.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("check status of %s: %v", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// JobFailedError means the backend reported the job as failed.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transcription %s failed: %s", e.JobID, e.Message)
	}
	return fmt.Sprintf("transcription %s failed", e.JobID)
}

// NoDataError means an export was requested with nothing to export.
type NoDataError struct {
	Format string
}

func (e *NoDataError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("no %s data to export", e.Format)
	}
	return "no data to export"
}
