// Command transcribe records or picks audio, sends it to the transcription
// backend and shows the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/app"
	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/config"
	"github.com/jwulff/transcribe/internal/cycle"
	"github.com/jwulff/transcribe/internal/db"
	"github.com/jwulff/transcribe/internal/job"
	"github.com/jwulff/transcribe/internal/mcpserver"
	"github.com/jwulff/transcribe/internal/session"
)

const usage = `Usage: transcribe [flags] [command]

Commands:
  (none)        interactive recorder
  history       list past transcriptions
  edit <id>     replace the text of a transcription (--text, --speakers-text)
  delete <id>   delete a transcription
  mcp           serve MCP tools on stdio

Flags:
`

var errNotLoggedIn = errors.New("not logged in: run transcribe to log in")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("transcribe", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	page := fs.Int("page", 1, "history page")
	perPage := fs.Int("per-page", 10, "history items per page")
	status := fs.String("status", "", "history status filter (pending, processing, completed, failed)")
	text := fs.String("text", "", "edit: new plain text")
	speakersText := fs.String("speakers-text", "", "edit: new speaker-labelled text")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	command := fs.Arg(0)
	switch command {
	case "", "history", "mcp":
	case "delete":
		if fs.NArg() != 2 {
			fmt.Fprintln(stderr, "usage: transcribe delete <id>")
			return 2
		}
	case "edit":
		if fs.NArg() != 2 || (!fs.Changed("text") && !fs.Changed("speakers-text")) {
			fmt.Fprintln(stderr, "usage: transcribe edit <id> --text TEXT [--speakers-text TEXT]")
			return 2
		}
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := logrus.New()
	logFile, err := cfg.OpenLog(logger)
	if err != nil {
		fmt.Fprintf(stderr, "open log: %v\n", err)
		return 1
	}
	defer logFile.Close()

	c, err := build(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer c.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "":
		err = c.runTUI()
	case "history":
		err = c.runHistory(ctx, stdout, api.HistoryQuery{Page: *page, PerPage: *perPage, Status: *status})
	case "edit":
		var upd api.TranscriptionUpdate
		if fs.Changed("text") {
			upd.Text = text
		}
		if fs.Changed("speakers-text") {
			upd.SpeakersText = speakersText
		}
		err = c.runEdit(ctx, stdout, fs.Arg(1), upd)
	case "delete":
		err = c.runDelete(ctx, stdout, fs.Arg(1))
	case "mcp":
		err = c.runMCP(ctx)
	}
	if err != nil {
		logger.WithError(err).WithField("command", command).Error("command failed")
		fmt.Fprintln(stderr, "transcribe:", err)
		return 1
	}
	return 0
}

// components is the wired pipeline shared by every command.
type components struct {
	cfg    *config.Config
	log    *logrus.Logger
	client *api.Client
	sess   *session.Store
	orch   *cycle.Orchestrator
}

func build(cfg *config.Config, logger *logrus.Logger) (*components, error) {
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	client := api.New(cfg.APIURL, api.WithTimeout(cfg.HTTPTimeout))
	sess := session.New(client, store,
		session.WithLogger(logger.WithField("component", "session")),
		session.WithLogoutOnInvalid(cfg.LogoutOnInvalid),
		session.WithServerLogout(cfg.ServerLogout),
	)
	orch := cycle.New(cycle.Config{
		Audio:     audio.NewManager(audio.NewCommandDevice(cfg.RecordCommand), logger.WithField("component", "audio")),
		Submitter: job.NewSubmitter(client, logger.WithField("component", "submit")),
		Poller: &job.Poller{
			Fetcher:  client,
			Interval: cfg.PollInterval,
			Retries:  cfg.PollRetries,
			Logger:   logger.WithField("component", "poll"),
		},
		Session: sess,
		Logger:  logger.WithField("component", "cycle"),
	})

	logger.WithFields(logrus.Fields{"api": client.BaseURL(), "db": cfg.DBPath}).Debug("started")
	return &components{cfg: cfg, log: logger, client: client, sess: sess, orch: orch}, nil
}

func (c *components) close() {
	c.orch.Close()
	if err := c.sess.Close(); err != nil {
		c.log.WithError(err).Warn("close session store")
	}
}

// restore loads the saved session for the non-interactive commands.
func (c *components) restore(ctx context.Context) (string, error) {
	ok, err := c.sess.Restore(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errNotLoggedIn
	}
	return c.sess.Snapshot().Token, nil
}

func (c *components) runTUI() error {
	m := app.New(app.Deps{
		Session:   c.sess,
		Cycle:     c.orch,
		ExportDir: c.cfg.ExportDir,
		Logger:    c.log.WithField("component", "tui"),
	})
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (c *components) runHistory(ctx context.Context, w io.Writer, q api.HistoryQuery) error {
	token, err := c.restore(ctx)
	if err != nil {
		return err
	}
	resp, err := c.client.History(ctx, token, q)
	if err != nil {
		return fmt.Errorf("list transcriptions: %w", err)
	}
	fmt.Fprintln(w, renderHistory(resp))
	return nil
}

func (c *components) runEdit(ctx context.Context, w io.Writer, id string, upd api.TranscriptionUpdate) error {
	token, err := c.restore(ctx)
	if err != nil {
		return err
	}
	tr, err := c.client.UpdateTranscription(ctx, token, id, upd)
	if err != nil {
		return fmt.Errorf("update transcription %s: %w", id, err)
	}
	fmt.Fprintf(w, "Updated %s\n", tr.ID)
	return nil
}

func (c *components) runDelete(ctx context.Context, w io.Writer, id string) error {
	token, err := c.restore(ctx)
	if err != nil {
		return err
	}
	if err := c.client.DeleteTranscription(ctx, token, id); err != nil {
		return fmt.Errorf("delete transcription %s: %w", id, err)
	}
	fmt.Fprintf(w, "Deleted %s\n", id)
	return nil
}

func (c *components) runMCP(ctx context.Context) error {
	if _, err := c.restore(ctx); err != nil {
		return err
	}
	if err := c.sess.Revalidate(ctx); err != nil {
		c.log.WithError(err).Warn("could not confirm session")
	}
	srv := mcpserver.New(mcpserver.Config{
		Library:   c.client,
		Session:   c.sess,
		Cycle:     c.orch,
		ExportDir: c.cfg.ExportDir,
		Logger:    c.log.WithField("component", "mcp"),
	})
	return srv.ServeStdio()
}
