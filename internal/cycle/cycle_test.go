package cycle

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/api/apitest"
	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/errs"
	"github.com/jwulff/transcribe/internal/job"
	"github.com/jwulff/transcribe/internal/result"
	"github.com/jwulff/transcribe/internal/session"
)

type staticSession struct{ snap session.Snapshot }

func (s staticSession) Snapshot() session.Snapshot { return s.snap }

type fixture struct {
	orch *Orchestrator
	srv  *apitest.Server
	wav  string
}

func newFixture(t *testing.T, verified bool, steps ...apitest.Step) *fixture {
	t.Helper()
	srv := apitest.New(t)
	srv.Script(steps...)
	user := srv.AddUser("ann@example.com", "secret1", verified)
	snap := session.Snapshot{User: &user, Token: srv.Token("ann@example.com", time.Hour)}

	logger, _ := logtest.NewNullLogger()
	client := api.New(srv.URL)
	orch := New(Config{
		Audio:     audio.NewManager(nil, logger),
		Submitter: job.NewSubmitter(client, logger),
		Poller:    &job.Poller{Fetcher: client, Interval: 5 * time.Millisecond, Logger: logger},
		Session:   staticSession{snap},
		Logger:    logger,
	})
	t.Cleanup(orch.Close)

	wav := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(wav, []byte("RIFF\x00\x00\x00\x00WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &fixture{orch: orch, srv: srv, wav: wav}
}

func waitState(t *testing.T, o *Orchestrator) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return st
}

func TestTranscribeFileToExport(t *testing.T) {
	f := newFixture(t, true,
		apitest.StatusStep("pending"),
		apitest.StatusStep("processing"),
		apitest.CompletedStep("hello", "", nil),
	)

	if _, err := f.orch.SelectFile(f.wav); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if err := f.orch.Transcribe(context.Background()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	st := f.orch.State()
	if st.Job == nil {
		t.Fatal("job should be installed")
	}

	st = waitState(t, f.orch)
	if st.Busy || st.Err != nil {
		t.Errorf("state = %+v", st)
	}
	if st.Result == nil || st.Result.Text != "hello" {
		t.Fatalf("result = %+v", st.Result)
	}
	if st.Job.Status != job.Completed {
		t.Errorf("job status = %s", st.Job.Status)
	}
	if got := f.srv.Polls(st.Job.ID); got != 3 {
		t.Errorf("status requests = %d, want 3", got)
	}

	file, err := f.orch.Export(result.FormatText)
	if err != nil || string(file.Data) != "hello" {
		t.Errorf("Export = (%q, %v)", file.Data, err)
	}
	path, err := f.orch.Save(result.FormatJSON, t.TempDir())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved file: %v", err)
	}
}

func TestTranscribeFailedJob(t *testing.T) {
	f := newFixture(t, true,
		apitest.StatusStep("pending"),
		apitest.StatusStep("failed"),
	)
	f.orch.SelectFile(f.wav)
	if err := f.orch.Transcribe(context.Background()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	st := waitState(t, f.orch)
	var failed *errs.JobFailedError
	if !errors.As(st.Err, &failed) {
		t.Fatalf("err = %v, want JobFailedError", st.Err)
	}
	if st.Busy || st.Result != nil {
		t.Errorf("state = %+v", st)
	}
	if _, err := f.orch.Export(result.FormatText); err == nil {
		t.Error("export without result should fail")
	}
}

func TestFailedResubmitKeepsPreviousResult(t *testing.T) {
	f := newFixture(t, true, apitest.CompletedStep("hello", "", nil))
	f.orch.SelectFile(f.wav)
	if err := f.orch.Transcribe(context.Background()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	before := waitState(t, f.orch)
	if before.Result == nil || before.Job == nil {
		t.Fatalf("first cycle = %+v", before)
	}

	f.srv.FailNextUpload(500, `{"error":"boom"}`)
	err := f.orch.Transcribe(context.Background())
	var subErr *errs.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}

	after := f.orch.State()
	if after.Busy {
		t.Error("busy should be cleared")
	}
	if after.Result == nil || after.Result.Text != "hello" {
		t.Errorf("result = %+v, want previous result kept", after.Result)
	}
	if after.Job == nil || after.Job.ID != before.Job.ID {
		t.Errorf("job = %+v, want %s", after.Job, before.Job.ID)
	}
	if file, err := f.orch.Export(result.FormatText); err != nil || string(file.Data) != "hello" {
		t.Errorf("Export = (%q, %v)", file.Data, err)
	}
}

func TestTranscribeWithoutArtifact(t *testing.T) {
	f := newFixture(t, true)

	err := f.orch.Transcribe(context.Background())
	var valErr *errs.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if st := f.orch.State(); st.Busy || st.Job != nil || st.Err == nil {
		t.Errorf("state = %+v", st)
	}
	if f.srv.TotalCalls() != 0 {
		t.Error("no request expected")
	}
}

func TestTranscribeUnverified(t *testing.T) {
	f := newFixture(t, false)
	f.orch.SelectFile(f.wav)

	err := f.orch.Transcribe(context.Background())
	var authErr *errs.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	st := f.orch.State()
	if st.Busy || st.Job != nil {
		t.Errorf("failed submit left state %+v", st)
	}
	if f.srv.TotalCalls() != 0 {
		t.Errorf("made %d requests, want 0", f.srv.TotalCalls())
	}
}

func TestResetDropsStaleUpdate(t *testing.T) {
	f := newFixture(t, true, apitest.StatusStep("processing"))
	f.orch.SelectFile(f.wav)
	if err := f.orch.Transcribe(context.Background()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	old := f.orch.State()

	f.orch.Reset()

	// A completion for the abandoned job arrives late.
	res := result.Result{Text: "stale"}
	f.orch.sink(old.Gen, old.Job.ID)(job.Update{Status: job.Completed, Result: &res})

	st := f.orch.State()
	if st.Result != nil || st.Job != nil || st.Busy {
		t.Errorf("stale update leaked into %+v", st)
	}
	if st.Gen == old.Gen {
		t.Error("reset should start a new cycle")
	}
	if _, ok := st.Audio.(audio.Idle); !ok {
		t.Errorf("audio = %T, want Idle", st.Audio)
	}
}

func TestSelectFileAbandonsRunningJob(t *testing.T) {
	f := newFixture(t, true, apitest.StatusStep("processing"))
	f.orch.SelectFile(f.wav)
	f.orch.Transcribe(context.Background())
	first := f.orch.State()

	// Waiting on the old job returns once it is abandoned.
	done := make(chan State, 1)
	go func() {
		st, _ := f.orch.Wait(context.Background())
		done <- st
	}()
	time.Sleep(20 * time.Millisecond)

	if _, err := f.orch.SelectFile(f.wav); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	select {
	case st := <-done:
		if st.Gen == first.Gen {
			t.Error("waiter should observe the new cycle")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after abandon")
	}

	time.Sleep(20 * time.Millisecond)
	polls := f.srv.Polls(first.Job.ID)
	time.Sleep(50 * time.Millisecond)
	if f.srv.Polls(first.Job.ID) != polls {
		t.Error("abandoned job is still polled")
	}

	// The new artifact can be submitted right away.
	if err := f.orch.Transcribe(context.Background()); err != nil {
		t.Errorf("Transcribe new artifact: %v", err)
	}
}

func TestTranscribeTwiceIsInFlight(t *testing.T) {
	f := newFixture(t, true, apitest.StatusStep("processing"))
	f.orch.SelectFile(f.wav)
	f.orch.Transcribe(context.Background())

	if err := f.orch.Transcribe(context.Background()); !errors.Is(err, job.ErrInFlight) {
		t.Errorf("err = %v, want ErrInFlight", err)
	}
	if got := f.srv.Calls("POST /upload"); got != 1 {
		t.Errorf("uploads = %d, want 1", got)
	}
}

// gatedUploader blocks uploads until release is closed.
type gatedUploader struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (u *gatedUploader) Upload(ctx context.Context, token, filename, contentType string, data io.Reader) (api.UploadResponse, error) {
	u.once.Do(func() { close(u.entered) })
	<-u.release
	return api.UploadResponse{UUID: "job-late", TranscriptionStatus: "pending"}, nil
}

func TestResetDuringUpload(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	user := api.User{Email: "ann@example.com", IsVerified: true}
	up := &gatedUploader{entered: make(chan struct{}), release: make(chan struct{})}
	sub := job.NewSubmitter(up, logger)
	orch := New(Config{
		Audio:     audio.NewManager(nil, logger),
		Submitter: sub,
		Poller:    &job.Poller{Fetcher: nil, Interval: time.Hour, Logger: logger},
		Session:   staticSession{session.Snapshot{User: &user, Token: "tok"}},
		Logger:    logger,
	})
	defer orch.Close()

	a := audio.NewRecording([]byte("RIFF"), time.Now())
	orch.SelectArtifact(a)

	errc := make(chan error, 1)
	go func() { errc <- orch.Transcribe(context.Background()) }()
	<-up.entered
	if !orch.State().Busy {
		t.Error("should be busy while uploading")
	}

	orch.Reset()
	close(up.release)

	if err := <-errc; !errors.Is(err, ErrAbandoned) {
		t.Errorf("err = %v, want ErrAbandoned", err)
	}
	st := orch.State()
	if st.Job != nil || st.Busy {
		t.Errorf("late job installed: %+v", st)
	}
	if _, err := sub.Submit(context.Background(), a, orch.sess.Snapshot()); err != nil {
		t.Errorf("abandoned artifact should be settled: %v", err)
	}
}

func TestEventsSignal(t *testing.T) {
	f := newFixture(t, true)
	f.orch.SelectFile(f.wav)

	select {
	case <-f.orch.Events():
	case <-time.After(time.Second):
		t.Fatal("no event after SelectFile")
	}
	if _, ok := f.orch.State().Audio.(audio.Captured); !ok {
		t.Error("expected captured audio")
	}
}
