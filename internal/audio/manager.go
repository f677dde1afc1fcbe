package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jwulff/transcribe/internal/errs"
)

// MaxFileSize bounds files accepted by SelectFile.
const MaxFileSize = 512 << 20

// Extensions the platform MIME table may not know.
var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".webm": "audio/webm",
}

// Manager runs the Idle/Recording/Captured state machine against a Device.
type Manager struct {
	device Device
	log    logrus.FieldLogger
	now    func() time.Time

	mu    sync.Mutex
	state State
	rec   *capture
}

type capture struct {
	handle io.ReadCloser
	buf    bytes.Buffer
	err    error
	done   chan struct{}
	once   sync.Once
}

func (c *capture) read() {
	defer close(c.done)
	_, err := io.Copy(&c.buf, c.handle)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
		c.err = err
	}
	c.release()
}

func (c *capture) release() {
	c.once.Do(func() { c.handle.Close() })
}

// NewManager returns an idle manager. device may be nil when only files
// are used.
func NewManager(device Device, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{device: device, log: log, now: time.Now, state: Idle{}}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Artifact returns the captured artifact, if any.
func (m *Manager) Artifact() (Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.(Captured)
	return c.Artifact, ok
}

// StartRecording opens the device and starts capturing. A device failure is
// an *errs.DeviceError and leaves the state unchanged.
func (m *Manager) StartRecording(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	next, err := Next(m.state, Start{At: now})
	if err != nil {
		return err
	}
	if m.device == nil {
		return &errs.DeviceError{Err: errors.New("no capture device configured")}
	}
	handle, err := m.device.Open(ctx)
	if err != nil {
		return &errs.DeviceError{Err: err}
	}

	m.rec = &capture{handle: handle, done: make(chan struct{})}
	go m.rec.read()
	m.state = next
	m.log.Info("recording started")
	return nil
}

// StopRecording releases the device and captures what was recorded. It
// reports false when no recording was running.
func (m *Manager) StopRecording() (Artifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.(Recording); !ok {
		return Artifact{}, false, nil
	}
	rec := m.finishLocked()

	if rec.err != nil && rec.buf.Len() == 0 {
		m.state = Idle{}
		return Artifact{}, true, &errs.DeviceError{Err: rec.err}
	}
	if rec.buf.Len() == 0 {
		m.state = Idle{}
		return Artifact{}, true, &errs.DeviceError{Err: errors.New("no audio captured")}
	}

	a := NewRecording(bytes.Clone(rec.buf.Bytes()), m.now())
	m.state, _ = Next(m.state, Stop{Artifact: a})
	m.log.WithFields(logrus.Fields{"artifact": a.ID, "bytes": a.Size()}).Info("recording stopped")
	return a, true, nil
}

func (m *Manager) finishLocked() *capture {
	rec := m.rec
	m.rec = nil
	rec.release()
	<-rec.done
	return rec
}

// SelectFile reads path and makes it the current artifact.
func (m *Manager) SelectFile(path string) (Artifact, error) {
	if _, ok := m.State().(Recording); ok {
		return Artifact{}, ErrRecording
	}

	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, &errs.ValidationError{Msg: fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return Artifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > MaxFileSize {
		return Artifact{}, &errs.ValidationError{Msg: fmt.Sprintf("%s is larger than %d MB", filepath.Base(path), MaxFileSize>>20)}
	}
	if len(data) == 0 {
		return Artifact{}, &errs.ValidationError{Msg: fmt.Sprintf("%s is empty", filepath.Base(path))}
	}

	ct := DetectType(path, data)
	if !Accepted(ct) {
		return Artifact{}, &errs.ValidationError{Msg: fmt.Sprintf("%s is not an audio file (%s)", filepath.Base(path), ct)}
	}
	return m.SelectArtifact(NewFile(filepath.Base(path), ct, data, m.now()))
}

// SelectArtifact makes a the current artifact.
func (m *Manager) SelectArtifact(a Artifact) (Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := Next(m.state, Pick{Artifact: a})
	if err != nil {
		return Artifact{}, err
	}
	m.state = next
	m.log.WithFields(logrus.Fields{"artifact": a.ID, "file": a.Filename}).Info("audio selected")
	return a, nil
}

// Reset releases the device if recording and discards the artifact.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec != nil {
		m.finishLocked()
	}
	m.state, _ = Next(m.state, Reset{})
}

// DetectType resolves the MIME type of an audio file from its extension,
// falling back to the content.
func DetectType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

// Accepted reports whether ct is a type the backend transcribes.
func Accepted(ct string) bool {
	return strings.HasPrefix(ct, "audio/") || ct == "video/webm" || ct == "application/octet-stream"
}
