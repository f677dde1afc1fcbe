package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthErrorUnwrapsValidation(t *testing.T) {
	err := fmt.Errorf("login: %w", &AuthError{
		Msg: "email and password are required",
		Err: &ValidationError{Msg: "email and password are required"},
	})

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatal("expected AuthError")
	}
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatal("expected wrapped ValidationError")
	}
}

func TestPollErrorMessage(t *testing.T) {
	err := &PollError{JobID: "job-1", Err: errors.New("connection reset")}
	want := "check status of job-1: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if errors.Unwrap(err).Error() != "connection reset" {
		t.Error("PollError should unwrap to the transport error")
	}
}

func TestJobFailedErrorMessage(t *testing.T) {
	if got := (&JobFailedError{JobID: "j"}).Error(); got != "transcription j failed" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&JobFailedError{JobID: "j", Message: "bad codec"}).Error(); got != "transcription j failed: bad codec" {
		t.Errorf("Error() = %q", got)
	}
}
