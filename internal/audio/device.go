package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRecordCommand captures CD-quality WAV from the default ALSA device
// to stdout.
const DefaultRecordCommand = "arecord -q -f cd -t wav -"

// Device opens the capture hardware. Closing the returned handle releases
// it.
type Device interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// CommandDevice records by running an external program that writes audio
// to stdout.
type CommandDevice struct {
	Args []string
	// StopTimeout is how long the program gets to exit after an interrupt
	// before it is killed.
	StopTimeout time.Duration
}

// NewCommandDevice splits command on whitespace.
func NewCommandDevice(command string) *CommandDevice {
	if strings.TrimSpace(command) == "" {
		command = DefaultRecordCommand
	}
	return &CommandDevice{Args: strings.Fields(command), StopTimeout: 2 * time.Second}
}

// Open starts the recorder.
func (d *CommandDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	if len(d.Args) == 0 {
		return nil, errors.New("no record command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	timeout := d.StopTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	cmd := exec.Command(d.Args[0], d.Args[1:]...)
	cmd.Stdout = pw
	cmd.WaitDelay = timeout
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", d.Args[0], err)
	}

	h := &cmdHandle{cmd: cmd, pr: pr, pw: pw, timeout: timeout, exited: make(chan struct{})}
	go h.wait()
	return h, nil
}

type cmdHandle struct {
	cmd      *exec.Cmd
	pr       *io.PipeReader
	pw       *io.PipeWriter
	timeout  time.Duration
	exited   chan struct{}
	once     sync.Once
	stopping atomic.Bool // Close asked the program to exit
}

func (h *cmdHandle) wait() {
	err := h.cmd.Wait()
	if err != nil && !h.stopping.Load() {
		h.pw.CloseWithError(err)
	} else {
		h.pw.Close()
	}
	close(h.exited)
}

func (h *cmdHandle) Read(p []byte) (int, error) { return h.pr.Read(p) }

// Close interrupts the recorder so it can flush, and kills it if it does
// not exit in time.
func (h *cmdHandle) Close() error {
	h.once.Do(func() {
		select {
		case <-h.exited:
			return
		default:
		}
		h.stopping.Store(true)
		h.cmd.Process.Signal(os.Interrupt)
		select {
		case <-h.exited:
		case <-time.After(h.timeout):
			h.cmd.Process.Kill()
			h.pr.Close()
			<-h.exited
		}
	})
	return nil
}
