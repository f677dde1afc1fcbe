package job

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/api/apitest"
	"github.com/jwulff/transcribe/internal/errs"
)

// pollFixture uploads one job against a scripted fake backend.
func pollFixture(t *testing.T, steps ...apitest.Step) (*apitest.Server, *api.Client, string, string) {
	t.Helper()
	srv := apitest.New(t)
	srv.AddUser("ann@example.com", "secret1", true)
	srv.Script(steps...)
	token := srv.Token("ann@example.com", time.Hour)
	c := api.New(srv.URL)
	up, err := c.Upload(context.Background(), token, "a.wav", "audio/wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return srv, c, token, up.UUID
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) sink(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func testPoller(f Fetcher, retries int) *Poller {
	logger, _ := logtest.NewNullLogger()
	return &Poller{Fetcher: f, Interval: 5 * time.Millisecond, Retries: retries, Logger: logger}
}

func waitTask(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not finish")
	}
}

func TestPollUntilCompleted(t *testing.T) {
	srv, c, token, jobID := pollFixture(t,
		apitest.StatusStep("pending"),
		apitest.StatusStep("processing"),
		apitest.CompletedStep("hello", "", nil),
	)
	var rec recorder
	task := testPoller(c, 0).Start(context.Background(), token, jobID, rec.sink)
	waitTask(t, task)

	if got := srv.Polls(jobID); got != 3 {
		t.Errorf("status requests = %d, want 3", got)
	}
	updates := rec.all()
	if len(updates) != 2 {
		t.Fatalf("updates = %+v, want processing then completed", updates)
	}
	if updates[0].Status != Processing || updates[0].Final() {
		t.Errorf("first update = %+v", updates[0])
	}
	last := updates[1]
	if last.Status != Completed || last.Result == nil || last.Result.Text != "hello" || last.JobID != jobID {
		t.Errorf("last update = %+v", last)
	}
}

func TestPollFailed(t *testing.T) {
	srv, c, token, jobID := pollFixture(t,
		apitest.StatusStep("pending"),
		apitest.Step{Response: api.StatusResponse{Status: "failed", Message: "unsupported codec"}},
	)
	var rec recorder
	waitTask(t, testPoller(c, 0).Start(context.Background(), token, jobID, rec.sink))

	if got := srv.Polls(jobID); got != 2 {
		t.Errorf("status requests = %d, want 2", got)
	}
	updates := rec.all()
	if len(updates) != 1 {
		t.Fatalf("updates = %+v", updates)
	}
	var failed *errs.JobFailedError
	if !errors.As(updates[0].Err, &failed) {
		t.Fatalf("err = %v, want JobFailedError", updates[0].Err)
	}
	if failed.JobID != jobID || failed.Message != "unsupported codec" {
		t.Errorf("failed = %+v", failed)
	}
	if updates[0].Result != nil {
		t.Error("failed job must not carry a result")
	}
}

func TestPollTransportErrorNoRetry(t *testing.T) {
	srv, c, token, jobID := pollFixture(t, apitest.Step{Code: http.StatusServiceUnavailable})
	var rec recorder
	waitTask(t, testPoller(c, 0).Start(context.Background(), token, jobID, rec.sink))

	if got := srv.Polls(jobID); got != 1 {
		t.Errorf("status requests = %d, want 1", got)
	}
	updates := rec.all()
	var pollErr *errs.PollError
	if len(updates) != 1 || !errors.As(updates[0].Err, &pollErr) {
		t.Fatalf("updates = %+v, want one PollError", updates)
	}
}

func TestPollRetriesTransientErrors(t *testing.T) {
	srv, c, token, jobID := pollFixture(t,
		apitest.Step{Code: http.StatusServiceUnavailable},
		apitest.Step{Code: http.StatusBadGateway},
		apitest.CompletedStep("hello", "", nil),
	)
	var rec recorder
	waitTask(t, testPoller(c, 2).Start(context.Background(), token, jobID, rec.sink))

	if got := srv.Polls(jobID); got != 3 {
		t.Errorf("status requests = %d, want 3", got)
	}
	updates := rec.all()
	if len(updates) != 1 || updates[0].Result == nil {
		t.Errorf("updates = %+v, want the completed result", updates)
	}
}

func TestPollRetriesAreBounded(t *testing.T) {
	srv, c, token, jobID := pollFixture(t, apitest.Step{Code: http.StatusServiceUnavailable})
	var rec recorder
	waitTask(t, testPoller(c, 2).Start(context.Background(), token, jobID, rec.sink))

	if got := srv.Polls(jobID); got != 3 {
		t.Errorf("status requests = %d, want 3", got)
	}
	var pollErr *errs.PollError
	if updates := rec.all(); len(updates) != 1 || !errors.As(updates[0].Err, &pollErr) {
		t.Errorf("updates = %+v", updates)
	}
}

func TestPollDecodeErrorIsNotRetried(t *testing.T) {
	srv, c, token, jobID := pollFixture(t, apitest.Step{Raw: "{broken"})
	var rec recorder
	waitTask(t, testPoller(c, 3).Start(context.Background(), token, jobID, rec.sink))

	if got := srv.Polls(jobID); got != 1 {
		t.Errorf("status requests = %d, want 1", got)
	}
	var pollErr *errs.PollError
	if updates := rec.all(); len(updates) != 1 || !errors.As(updates[0].Err, &pollErr) {
		t.Errorf("updates = %+v", updates)
	}
}

func TestPollIgnoresRegression(t *testing.T) {
	_, c, token, jobID := pollFixture(t,
		apitest.StatusStep("processing"),
		apitest.StatusStep("pending"),
		apitest.CompletedStep("hello", "", nil),
	)
	var rec recorder
	waitTask(t, testPoller(c, 0).Start(context.Background(), token, jobID, rec.sink))

	var got []Status
	for _, u := range rec.all() {
		got = append(got, u.Status)
	}
	if len(got) != 2 || got[0] != Processing || got[1] != Completed {
		t.Errorf("statuses = %v, want [processing completed]", got)
	}
}

func TestPollCancel(t *testing.T) {
	srv, c, token, jobID := pollFixture(t, apitest.StatusStep("processing"))
	var rec recorder
	task := testPoller(c, 0).Start(context.Background(), token, jobID, rec.sink)

	deadline := time.Now().Add(2 * time.Second)
	for srv.Polls(jobID) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("poller did not start")
		}
		time.Sleep(time.Millisecond)
	}

	task.Cancel()
	delivered := len(rec.all())
	waitTask(t, task)
	time.Sleep(20 * time.Millisecond)
	polls := srv.Polls(jobID)

	time.Sleep(50 * time.Millisecond)
	if srv.Polls(jobID) != polls {
		t.Error("requests continued after cancel")
	}
	if len(rec.all()) != delivered {
		t.Error("update delivered after cancel")
	}
}

func TestCancelNilTask(t *testing.T) {
	var task *Task
	task.Cancel()
}
