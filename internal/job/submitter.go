package job

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/errs"
	"github.com/jwulff/transcribe/internal/session"
)

// ErrInFlight is returned when the artifact already has an unfinished job.
var ErrInFlight = errors.New("transcription already in progress")

// Uploader starts a job on the backend.
type Uploader interface {
	Upload(ctx context.Context, token, filename, contentType string, data io.Reader) (api.UploadResponse, error)
}

// Submitter uploads artifacts, at most one job per artifact at a time.
type Submitter struct {
	up  Uploader
	log logrus.FieldLogger
	now func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]string // artifact id -> job id, "" while uploading
}

// NewSubmitter returns a Submitter using up.
func NewSubmitter(up Uploader, log logrus.FieldLogger) *Submitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Submitter{up: up, log: log, now: time.Now, inflight: make(map[string]string)}
}

// Submit uploads a and returns the new job. The session must be
// authenticated and verified; otherwise no request is made. Concurrent
// calls for the same artifact share one upload.
func (s *Submitter) Submit(ctx context.Context, a audio.Artifact, snap session.Snapshot) (Job, error) {
	if !snap.IsAuthenticated() {
		return Job{}, &errs.AuthError{Msg: "log in to transcribe"}
	}
	if !snap.IsVerified() {
		return Job{}, &errs.AuthError{Msg: "verify your email to transcribe"}
	}
	if len(a.Data) == 0 {
		return Job{}, &errs.ValidationError{Msg: "no audio to transcribe"}
	}

	v, err, shared := s.group.Do(a.ID, func() (any, error) {
		if !s.reserve(a.ID) {
			return Job{}, ErrInFlight
		}
		j, err := s.upload(ctx, a, snap.Token)
		if err != nil {
			s.Settle(a.ID)
		}
		return j, err
	})
	if err != nil {
		return Job{}, err
	}
	j := v.(Job)
	if shared {
		s.log.WithField("job_id", j.ID).Debug("joined in-flight submission")
	}
	return j, nil
}

// reserve claims the artifact before its upload starts.
func (s *Submitter) reserve(artifactID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[artifactID]; ok {
		return false
	}
	s.inflight[artifactID] = ""
	return true
}

func (s *Submitter) upload(ctx context.Context, a audio.Artifact, token string) (Job, error) {
	log := s.log.WithFields(logrus.Fields{"artifact": a.ID, "file": a.Filename, "bytes": a.Size()})
	resp, err := s.up.Upload(ctx, token, a.Filename, a.ContentType, bytes.NewReader(a.Data))
	if err != nil {
		log.WithError(err).Warn("upload failed")
		return Job{}, submissionError(err)
	}

	st, ok := ParseStatus(resp.TranscriptionStatus)
	if !ok {
		st = Pending
	}
	j := Job{ID: resp.UUID, ArtifactID: a.ID, Status: st, SubmittedAt: s.now()}

	s.mu.Lock()
	s.inflight[a.ID] = j.ID
	s.mu.Unlock()
	log.WithField("job_id", j.ID).Info("submitted")
	return j, nil
}

func submissionError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "transcription failed"
		}
		return &errs.SubmissionError{StatusCode: apiErr.StatusCode, Msg: msg, Err: err}
	}
	return &errs.SubmissionError{Msg: "transcription failed: " + err.Error(), Err: err}
}

// Settle releases the artifact so it may be submitted again. Call it when
// its job is terminal or its cycle is abandoned.
func (s *Submitter) Settle(artifactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, artifactID)
}
