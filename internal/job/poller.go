package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/errs"
	"github.com/jwulff/transcribe/internal/result"
)

// DefaultInterval is the wait between status checks.
const DefaultInterval = 2 * time.Second

// Fetcher reads a job's status.
type Fetcher interface {
	Status(ctx context.Context, token, id string) (api.StatusResponse, error)
}

// Update is one observation delivered to a poll sink. Exactly one of Result
// and Err is set on the final update; intermediate updates carry neither.
type Update struct {
	JobID  string
	Status Status
	Result *result.Result
	Err    error
}

// Final reports whether the poll loop stopped after this update.
func (u Update) Final() bool {
	return u.Result != nil || u.Err != nil
}

// Poller follows jobs until they finish. Retries is how many consecutive
// transport failures are tolerated before giving up.
type Poller struct {
	Fetcher  Fetcher
	Interval time.Duration
	Retries  int
	Logger   logrus.FieldLogger
}

// Task is a running poll loop.
type Task struct {
	JobID   string
	cancel  context.CancelFunc
	revoked atomic.Bool
	done    chan struct{}
}

// Cancel stops the loop without waiting for it. No update is delivered
// after Cancel returns, except one whose delivery had already begun.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.revoked.Store(true)
	t.cancel()
}

// Done is closed when the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the loop has exited.
func (t *Task) Wait() { <-t.done }

// Start polls jobID in a new goroutine and reports to sink.
func (p *Poller) Start(ctx context.Context, token, jobID string, sink func(Update)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{JobID: jobID, cancel: cancel, done: make(chan struct{})}
	go p.run(ctx, t, token, sink)
	return t
}

func (p *Poller) run(ctx context.Context, t *Task, token string, sink func(Update)) {
	defer close(t.done)
	defer t.cancel()

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := p.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("job_id", t.JobID)

	deliver := func(u Update) {
		if t.revoked.Load() {
			return
		}
		u.JobID = t.JobID
		sink(u)
	}

	cur := Pending
	failures := 0
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		resp, err := p.Fetcher.Status(ctx, token, t.JobID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if retriable(err) && failures < p.Retries {
				failures++
				log.WithError(err).WithField("attempt", failures).Warn("status check failed, retrying")
				timer.Reset(interval)
				continue
			}
			log.WithError(err).Warn("status check failed")
			deliver(Update{Status: cur, Err: &errs.PollError{JobID: t.JobID, Err: err}})
			return
		}
		failures = 0

		next, ok := ParseStatus(resp.Status)
		if !ok {
			deliver(Update{Status: cur, Err: &errs.PollError{JobID: t.JobID, Err: fmt.Errorf("unknown status %q", resp.Status)}})
			return
		}

		st, changed := Advance(cur, next)
		if !changed && next != cur {
			log.WithFields(logrus.Fields{"from": cur, "to": next}).Debug("ignoring status regression")
		}
		cur = st

		switch cur {
		case Completed:
			res := result.FromStatus(resp)
			log.Info("transcription completed")
			deliver(Update{Status: cur, Result: &res})
			return
		case Failed:
			log.WithField("message", resp.Message).Info("transcription failed")
			deliver(Update{Status: cur, Err: &errs.JobFailedError{JobID: t.JobID, Message: resp.Message}})
			return
		}
		if changed {
			deliver(Update{Status: cur})
		}
		timer.Reset(interval)
	}
}

// retriable reports whether err may clear up on its own. Client errors and
// unparsable bodies will not.
func retriable(err error) bool {
	var dec *api.DecodeError
	if errors.As(err, &dec) {
		return false
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
