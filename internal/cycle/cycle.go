// Package cycle runs one record-or-pick, submit, poll and export cycle at a
// time. Starting a new cycle abandons the previous one; late results from
// an abandoned cycle are dropped.
package cycle

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/errs"
	"github.com/jwulff/transcribe/internal/job"
	"github.com/jwulff/transcribe/internal/result"
	"github.com/jwulff/transcribe/internal/session"
)

// ErrAbandoned is returned by Transcribe when the cycle was reset while the
// upload was in flight.
var ErrAbandoned = errors.New("transcription abandoned")

// Sessioner supplies the credential for each submission.
type Sessioner interface {
	Snapshot() session.Snapshot
}

// State is a snapshot of the current cycle.
type State struct {
	Gen    uint64
	Audio  audio.State
	Job    *job.Job
	Busy   bool
	Result *result.Result
	Err    error
}

// Config wires an Orchestrator.
type Config struct {
	Audio     *audio.Manager
	Submitter *job.Submitter
	Poller    *job.Poller
	Session   Sessioner
	Exporter  *result.Exporter
	Logger    logrus.FieldLogger
}

// Orchestrator owns the open cycle.
type Orchestrator struct {
	audio    *audio.Manager
	sub      *job.Submitter
	poller   *job.Poller
	sess     Sessioner
	cache    *result.Cache
	exporter *result.Exporter
	log      logrus.FieldLogger

	ctx    context.Context
	stop   context.CancelFunc
	events chan struct{}

	mu       sync.Mutex
	gen      uint64
	job      *job.Job
	task     *job.Task
	busy     bool
	err      error
	finished chan struct{}
}

// New returns an Orchestrator with an idle cycle.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	exporter := cfg.Exporter
	if exporter == nil {
		exporter = result.NewExporter()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		audio:    cfg.Audio,
		sub:      cfg.Submitter,
		poller:   cfg.Poller,
		sess:     cfg.Session,
		cache:    &result.Cache{},
		exporter: exporter,
		log:      log,
		ctx:      ctx,
		stop:     stop,
		events:   make(chan struct{}, 1),
	}
}

// Events signals after every state change. Signals coalesce; read State
// after each one.
func (o *Orchestrator) Events() <-chan struct{} { return o.events }

func (o *Orchestrator) notifyLocked() {
	select {
	case o.events <- struct{}{}:
	default:
	}
}

// State returns the current cycle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() State {
	s := State{Gen: o.gen, Audio: o.audio.State(), Busy: o.busy, Err: o.err}
	if o.job != nil {
		j := *o.job
		s.Job = &j
	}
	if r, ok := o.cache.Get(); ok {
		s.Result = &r
	}
	return s
}

// abandonLocked ends the current cycle: its poll task is cancelled, its job
// and result dropped, and its artifact released for resubmission.
func (o *Orchestrator) abandonLocked() {
	o.gen++
	o.task.Cancel()
	o.task = nil
	if o.job != nil {
		o.sub.Settle(o.job.ArtifactID)
		o.job = nil
	}
	if o.finished != nil {
		close(o.finished)
		o.finished = nil
	}
	o.cache.Clear()
	o.busy = false
	o.err = nil
	o.log.WithField("cycle", o.gen).Debug("cycle started")
}

func (o *Orchestrator) failLocked(err error) error {
	o.err = err
	o.notifyLocked()
	return err
}

// StartRecording starts capturing a new artifact and abandons the current
// cycle.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.audio.StartRecording(ctx); err != nil {
		return o.failLocked(err)
	}
	o.abandonLocked()
	o.notifyLocked()
	return nil
}

// StopRecording captures the recording as the cycle's artifact.
func (o *Orchestrator) StopRecording() (audio.Artifact, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, stopped, err := o.audio.StopRecording()
	if err != nil {
		return audio.Artifact{}, o.failLocked(err)
	}
	if stopped {
		o.notifyLocked()
	}
	return a, nil
}

// SelectFile makes the file at path the artifact of a new cycle.
func (o *Orchestrator) SelectFile(path string) (audio.Artifact, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, err := o.audio.SelectFile(path)
	if err != nil {
		return audio.Artifact{}, o.failLocked(err)
	}
	o.abandonLocked()
	o.notifyLocked()
	return a, nil
}

// SelectArtifact makes a the artifact of a new cycle.
func (o *Orchestrator) SelectArtifact(a audio.Artifact) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.audio.SelectArtifact(a); err != nil {
		return o.failLocked(err)
	}
	o.abandonLocked()
	o.notifyLocked()
	return nil
}

// Reset abandons the cycle and discards the artifact.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.abandonLocked()
	o.audio.Reset()
	o.notifyLocked()
}

// Transcribe submits the captured artifact and starts polling. It returns
// once the job is accepted; the outcome arrives through Events.
func (o *Orchestrator) Transcribe(ctx context.Context) error {
	o.mu.Lock()
	a, ok := o.audio.Artifact()
	switch {
	case !ok:
		defer o.mu.Unlock()
		return o.failLocked(&errs.ValidationError{Msg: "record or choose an audio file first"})
	case o.busy:
		o.mu.Unlock()
		return job.ErrInFlight
	}
	gen := o.gen
	o.busy = true
	o.err = nil
	o.notifyLocked()
	o.mu.Unlock()

	snap := o.sess.Snapshot()
	j, err := o.sub.Submit(ctx, a, snap)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		if err == nil {
			o.sub.Settle(a.ID)
		}
		o.log.WithField("cycle", gen).Debug("dropping submission for abandoned cycle")
		return ErrAbandoned
	}
	if err != nil {
		o.busy = false
		return o.failLocked(err)
	}

	// the previous job and result stay until a new job is accepted
	o.cache.Clear()
	o.job = &j
	o.finished = make(chan struct{})
	o.task = o.poller.Start(o.ctx, snap.Token, j.ID, o.sink(gen, j.ID))
	o.log.WithFields(logrus.Fields{"cycle": gen, "job_id": j.ID}).Info("polling")
	o.notifyLocked()
	return nil
}

func (o *Orchestrator) sink(gen uint64, jobID string) func(job.Update) {
	return func(u job.Update) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if gen != o.gen || o.job == nil || o.job.ID != jobID {
			o.log.WithFields(logrus.Fields{"cycle": gen, "job_id": jobID}).Debug("dropping stale update")
			return
		}
		o.job.Status = u.Status
		if !u.Final() {
			o.notifyLocked()
			return
		}

		if u.Result != nil {
			o.cache.Put(*u.Result)
		}
		o.err = u.Err
		o.busy = false
		o.task = nil
		o.sub.Settle(o.job.ArtifactID)
		if o.finished != nil {
			close(o.finished)
			o.finished = nil
		}
		o.notifyLocked()
	}
}

// Wait blocks until the current job is finished or abandoned and returns
// the resulting state.
func (o *Orchestrator) Wait(ctx context.Context) (State, error) {
	o.mu.Lock()
	ch := o.finished
	o.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return o.State(), ctx.Err()
		}
	}
	return o.State(), nil
}

// Export renders the cached result.
func (o *Orchestrator) Export(format result.Format) (result.File, error) {
	res, ok := o.cache.Get()
	if !ok {
		return result.File{}, &errs.NoDataError{Format: string(format)}
	}
	return o.exporter.Export(res, format)
}

// Save exports the cached result into dir and returns the written path.
func (o *Orchestrator) Save(format result.Format, dir string) (string, error) {
	f, err := o.Export(format)
	if err != nil {
		return "", err
	}
	path, err := o.exporter.Save(f, dir)
	if err != nil {
		return "", err
	}
	o.log.WithField("path", path).Info("saved transcription")
	return path, nil
}

// Close abandons the cycle and releases the capture device.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.abandonLocked()
	o.audio.Reset()
	o.stop()
}
