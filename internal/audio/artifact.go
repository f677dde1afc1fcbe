package audio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source says where an artifact came from.
type Source string

const (
	SourceRecorder Source = "recorder"
	SourceFile     Source = "file"
)

// Artifact is one audio payload ready for submission. ID is unique per
// artifact and keys single-flight submission.
type Artifact struct {
	ID          string
	Source      Source
	Filename    string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Size returns the payload length in bytes.
func (a Artifact) Size() int { return len(a.Data) }

// NewRecording wraps captured WAV bytes as recording_<unix-ms>.wav.
func NewRecording(data []byte, at time.Time) Artifact {
	return Artifact{
		ID:          uuid.NewString(),
		Source:      SourceRecorder,
		Filename:    fmt.Sprintf("recording_%d.wav", at.UnixMilli()),
		ContentType: "audio/wav",
		Data:        data,
		CreatedAt:   at,
	}
}

// NewFile wraps bytes read from a user-chosen file.
func NewFile(name, contentType string, data []byte, at time.Time) Artifact {
	return Artifact{
		ID:          uuid.NewString(),
		Source:      SourceFile,
		Filename:    name,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   at,
	}
}
