// Package mcpserver exposes the transcription pipeline as MCP tools over
// stdio, so an assistant can transcribe files and browse the history of the
// signed-in user.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/cycle"
	"github.com/jwulff/transcribe/internal/result"
	"github.com/jwulff/transcribe/internal/session"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Library is the stored-transcription part of the backend.
type Library interface {
	History(ctx context.Context, token string, q api.HistoryQuery) (api.HistoryResponse, error)
	Transcription(ctx context.Context, token, id string) (api.Transcription, error)
	UpdateTranscription(ctx context.Context, token, id string, upd api.TranscriptionUpdate) (api.Transcription, error)
	DeleteTranscription(ctx context.Context, token, id string) error
}

// Config wires a Server.
type Config struct {
	Library   Library
	Session   cycle.Sessioner
	Cycle     *cycle.Orchestrator
	ExportDir string
	Logger    logrus.FieldLogger
}

// Server holds the MCP tool handlers.
type Server struct {
	lib       Library
	sess      cycle.Sessioner
	orch      *cycle.Orchestrator
	exportDir string
	log       logrus.FieldLogger
	mcp       *server.MCPServer
}

// New registers the tools and returns the server.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	dir := cfg.ExportDir
	if dir == "" {
		dir = "."
	}
	s := &Server{
		lib:       cfg.Library,
		sess:      cfg.Session,
		orch:      cfg.Cycle,
		exportDir: dir,
		log:       log,
	}

	s.mcp = server.NewMCPServer("transcribe", Version, server.WithToolCapabilities(false))

	s.mcp.AddTool(mcp.NewTool("transcribe_file",
		mcp.WithDescription("Upload an audio file, wait for the transcription and return its text. Speaker-labelled text is returned when available."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to a local audio file")),
	), s.transcribeFile)

	s.mcp.AddTool(mcp.NewTool("export_result",
		mcp.WithDescription("Export the last transcription as text, json, srt or vtt."),
		mcp.WithString("format", mcp.Required(), mcp.Enum("text", "json", "srt", "vtt")),
		mcp.WithBoolean("save", mcp.Description("Write the export to the export directory instead of returning it")),
	), s.exportResult)

	s.mcp.AddTool(mcp.NewTool("list_transcriptions",
		mcp.WithDescription("List past transcriptions, newest first."),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1")),
		mcp.WithNumber("per_page", mcp.Description("Items per page")),
		mcp.WithString("status", mcp.Enum("pending", "processing", "completed", "failed")),
	), s.listTranscriptions)

	s.mcp.AddTool(mcp.NewTool("get_transcription",
		mcp.WithDescription("Return the text of a stored transcription."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Transcription id")),
	), s.getTranscription)

	s.mcp.AddTool(mcp.NewTool("update_transcription",
		mcp.WithDescription("Replace the text of a stored transcription. At least one of text or speakers_text is required."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Transcription id")),
		mcp.WithString("text", mcp.Description("New plain text")),
		mcp.WithString("speakers_text", mcp.Description("New speaker-labelled text")),
	), s.updateTranscription)

	s.mcp.AddTool(mcp.NewTool("delete_transcription",
		mcp.WithDescription("Delete a stored transcription and its audio."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Transcription id")),
	), s.deleteTranscription)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves the tools on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) token() (string, error) {
	snap := s.sess.Snapshot()
	switch {
	case !snap.IsAuthenticated():
		return "", errors.New("not logged in: run transcribe and log in first")
	case !snap.IsVerified():
		return "", errors.New("email not verified")
	}
	return snap.Token, nil
}

func (s *Server) transcribeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.token(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.orch.SelectFile(path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.orch.Transcribe(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.orch.Wait(ctx)
	if err != nil {
		s.orch.Reset()
		return mcp.NewToolResultError(fmt.Sprintf("waiting for transcription: %v", err)), nil
	}
	if st.Err != nil {
		return mcp.NewToolResultError(st.Err.Error()), nil
	}
	if st.Result == nil {
		return mcp.NewToolResultError("transcription abandoned"), nil
	}

	s.log.WithField("path", path).Info("transcribed file")
	if st.Result.Empty() {
		return mcp.NewToolResultText("(empty transcription)"), nil
	}
	return mcp.NewToolResultText(st.Result.Display()), nil
}

func (s *Server) exportResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := result.ParseFormat(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if req.GetBool("save", false) {
		path, err := s.orch.Save(format, s.exportDir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Saved " + path), nil
	}

	f, err := s.orch.Export(format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(f.Data)), nil
}

func (s *Server) listTranscriptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := s.token()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := api.HistoryQuery{
		Page:    req.GetInt("page", 1),
		PerPage: req.GetInt("per_page", 10),
		Status:  req.GetString("status", ""),
	}
	resp, err := s.lib.History(ctx, token, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list transcriptions: %v", err)), nil
	}
	return mcp.NewToolResultText(formatHistory(resp)), nil
}

func formatHistory(resp api.HistoryResponse) string {
	p := resp.Pagination
	if len(resp.Transcriptions) == 0 {
		return "No transcriptions."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Page %d of %d (%d total)\n", p.Page, max(p.Pages, 1), p.Total)
	for _, tr := range resp.Transcriptions {
		name := ""
		if tr.Audio != nil {
			name = tr.Audio.Filename
		}
		fmt.Fprintf(&b, "\n%s  %s  %s  %s", tr.ID, tr.Status, tr.CreatedAt, name)
		if text := result.Preview(result.FromTranscription(tr).Display(), 80); text != "" {
			fmt.Fprintf(&b, "\n  %s", text)
		}
	}
	return b.String()
}

func (s *Server) getTranscription(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := s.token()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tr, err := s.lib.Transcription(ctx, token, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get transcription %s: %v", id, err)), nil
	}
	if text := result.FromTranscription(tr).Display(); text != "" {
		return mcp.NewToolResultText(text), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Transcription %s is %s and has no text yet.", tr.ID, tr.Status)), nil
}

func (s *Server) updateTranscription(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := s.token()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var upd api.TranscriptionUpdate
	if v := req.GetString("text", ""); v != "" {
		upd.Text = api.StringPtr(v)
	}
	if v := req.GetString("speakers_text", ""); v != "" {
		upd.SpeakersText = api.StringPtr(v)
	}
	if upd.Text == nil && upd.SpeakersText == nil {
		return mcp.NewToolResultError("nothing to update: pass text or speakers_text"), nil
	}
	tr, err := s.lib.UpdateTranscription(ctx, token, id, upd)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("update transcription %s: %v", id, err)), nil
	}
	s.log.WithField("id", id).Info("updated transcription")
	return mcp.NewToolResultText(fmt.Sprintf("Updated %s\n\n%s", tr.ID, result.FromTranscription(tr).Display())), nil
}

func (s *Server) deleteTranscription(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	token, err := s.token()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.lib.DeleteTranscription(ctx, token, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete transcription %s: %v", id, err)), nil
	}
	s.log.WithField("id", id).Info("deleted transcription")
	return mcp.NewToolResultText("Deleted " + id), nil
}

var _ cycle.Sessioner = (*session.Store)(nil)
