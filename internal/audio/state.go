// Package audio produces the single audio artifact of a transcription cycle,
// either from a capture device or from a file on disk.
package audio

import (
	"errors"
	"time"
)

var (
	// ErrAlreadyRecording is returned when a recording is started twice.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrRecording is returned when a file is picked during a recording.
	ErrRecording = errors.New("stop the recording first")
)

// State is one of Idle, Recording or Captured.
type State interface{ isState() }

// Idle holds no artifact.
type Idle struct{}

// Recording is capturing from the device.
type Recording struct {
	StartedAt time.Time
}

// Captured holds the artifact of a stopped recording or a picked file.
type Captured struct {
	Artifact Artifact
}

func (Idle) isState()      {}
func (Recording) isState() {}
func (Captured) isState()  {}

// Event drives Next.
type Event interface{ isEvent() }

type (
	// Start begins a recording.
	Start struct{ At time.Time }
	// Stop ends a recording with the captured artifact.
	Stop struct{ Artifact Artifact }
	// Pick replaces the artifact with a chosen file.
	Pick struct{ Artifact Artifact }
	// Reset discards everything.
	Reset struct{}
)

func (Start) isEvent() {}
func (Stop) isEvent()  {}
func (Pick) isEvent()  {}
func (Reset) isEvent() {}

// Next returns the state after e. On error the state is unchanged.
func Next(s State, e Event) (State, error) {
	_, recording := s.(Recording)
	switch e := e.(type) {
	case Start:
		if recording {
			return s, ErrAlreadyRecording
		}
		return Recording{StartedAt: e.At}, nil
	case Stop:
		if !recording {
			return s, nil
		}
		return Captured{Artifact: e.Artifact}, nil
	case Pick:
		if recording {
			return s, ErrRecording
		}
		return Captured{Artifact: e.Artifact}, nil
	case Reset:
		return Idle{}, nil
	}
	return s, nil
}

// Name is a short label for logs and the status bar.
func Name(s State) string {
	switch s.(type) {
	case Recording:
		return "recording"
	case Captured:
		return "captured"
	}
	return "idle"
}
