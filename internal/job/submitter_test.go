package job

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/api/apitest"
	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/errs"
	"github.com/jwulff/transcribe/internal/session"
)

func verifiedSnapshot(srv *apitest.Server) session.Snapshot {
	user := srv.AddUser("ann@example.com", "secret1", true)
	return session.Snapshot{User: &user, Token: srv.Token("ann@example.com", time.Hour)}
}

func testArtifact() audio.Artifact {
	return audio.NewRecording([]byte("RIFF"), time.Now())
}

func newTestSubmitter(up Uploader) *Submitter {
	logger, _ := logtest.NewNullLogger()
	return NewSubmitter(up, logger)
}

func TestSubmitWithoutSessionMakesNoRequest(t *testing.T) {
	srv := apitest.New(t)
	sub := newTestSubmitter(api.New(srv.URL))

	unverified := srv.AddUser("bob@example.com", "secret1", false)
	for name, snap := range map[string]session.Snapshot{
		"anonymous":  {},
		"no user":    {Token: "tok"},
		"unverified": {User: &unverified, Token: srv.Token("bob@example.com", time.Hour)},
	} {
		_, err := sub.Submit(context.Background(), testArtifact(), snap)
		var authErr *errs.AuthError
		if !errors.As(err, &authErr) {
			t.Errorf("%s: err = %v, want AuthError", name, err)
		}
	}
	if srv.TotalCalls() != 0 {
		t.Errorf("made %d requests, want 0", srv.TotalCalls())
	}
}

func TestSubmitEmptyArtifact(t *testing.T) {
	srv := apitest.New(t)
	sub := newTestSubmitter(api.New(srv.URL))

	_, err := sub.Submit(context.Background(), audio.Artifact{ID: "a"}, verifiedSnapshot(srv))
	var valErr *errs.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestSubmitInFlightUntilSettled(t *testing.T) {
	srv := apitest.New(t)
	sub := newTestSubmitter(api.New(srv.URL))
	snap := verifiedSnapshot(srv)
	a := testArtifact()

	j, err := sub.Submit(context.Background(), a, snap)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.ID == "" || j.ArtifactID != a.ID || j.Status != Pending {
		t.Errorf("job = %+v", j)
	}
	if _, err := sub.Submit(context.Background(), a, snap); !errors.Is(err, ErrInFlight) {
		t.Errorf("second submit err = %v, want ErrInFlight", err)
	}

	sub.Settle(a.ID)
	if _, err := sub.Submit(context.Background(), a, snap); err != nil {
		t.Errorf("submit after settle: %v", err)
	}
	if got := srv.Calls("POST /upload"); got != 2 {
		t.Errorf("uploads = %d, want 2", got)
	}
}

// slowUploader blocks every upload until release is closed.
type slowUploader struct {
	calls   atomic.Int32
	release chan struct{}
}

func (u *slowUploader) Upload(ctx context.Context, token, filename, contentType string, data io.Reader) (api.UploadResponse, error) {
	u.calls.Add(1)
	<-u.release
	return api.UploadResponse{UUID: "job-1", TranscriptionStatus: "pending"}, nil
}

func TestSubmitConcurrentCollapses(t *testing.T) {
	up := &slowUploader{release: make(chan struct{})}
	sub := newTestSubmitter(up)
	user := api.User{Email: "ann@example.com", IsVerified: true}
	snap := session.Snapshot{User: &user, Token: "tok"}
	a := testArtifact()

	const n = 5
	var wg sync.WaitGroup
	var ok, inFlight atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := sub.Submit(context.Background(), a, snap)
			switch {
			case err == nil && j.ID == "job-1":
				ok.Add(1)
			case errors.Is(err, ErrInFlight):
				inFlight.Add(1)
			default:
				t.Errorf("Submit: (%+v, %v)", j, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(up.release)
	wg.Wait()

	if up.calls.Load() != 1 {
		t.Errorf("uploads = %d, want 1", up.calls.Load())
	}
	if ok.Load()+inFlight.Load() != n || ok.Load() < 1 {
		t.Errorf("ok=%d inFlight=%d", ok.Load(), inFlight.Load())
	}
}

func TestSubmitBackendError(t *testing.T) {
	srv := apitest.New(t)
	sub := newTestSubmitter(api.New(srv.URL))
	snap := verifiedSnapshot(srv)

	srv.FailNextUpload(http.StatusBadRequest, `{"error":"No selected file"}`)
	_, err := sub.Submit(context.Background(), testArtifact(), snap)
	var subErr *errs.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if subErr.Msg != "No selected file" || subErr.StatusCode != http.StatusBadRequest {
		t.Errorf("subErr = %+v", subErr)
	}

	srv.FailNextUpload(http.StatusInternalServerError, `{}`)
	a := testArtifact()
	_, err = sub.Submit(context.Background(), a, snap)
	if !errors.As(err, &subErr) || subErr.Msg != "transcription failed" {
		t.Errorf("err = %v, want generic message", err)
	}
	if _, err := sub.Submit(context.Background(), a, snap); err != nil {
		t.Errorf("resubmit after failed upload: %v", err)
	}
}

func TestSubmitUploadsOnceUntilSettled(t *testing.T) {
	up := &slowUploader{release: make(chan struct{})}
	sub := newTestSubmitter(up)
	user := api.User{Email: "ann@example.com", IsVerified: true}
	snap := session.Snapshot{User: &user, Token: "tok"}
	a := testArtifact()

	// callers keep arriving before, during and after the first upload
	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if i == n/2 {
			close(up.release)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sub.Submit(context.Background(), a, snap); err != nil && !errors.Is(err, ErrInFlight) {
				t.Errorf("Submit: %v", err)
			}
		}()
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	if got := up.calls.Load(); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
}
