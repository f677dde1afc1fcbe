package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/jwulff/transcribe/internal/audio"
	"github.com/jwulff/transcribe/internal/cycle"
	"github.com/jwulff/transcribe/internal/job"
	"github.com/jwulff/transcribe/internal/result"
	"github.com/jwulff/transcribe/internal/session"
	"github.com/jwulff/transcribe/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Screen is the page the TUI shows.
type Screen int

const (
	ScreenLoading Screen = iota
	ScreenAuth
	ScreenVerify
	ScreenRecorder
)

// AuthMode selects between the login and registration forms.
type AuthMode int

const (
	ModeLogin AuthMode = iota
	ModeRegister
)

const (
	fieldEmail    = "Email"
	fieldUsername = "Username"
	fieldPassword = "Password"
	fieldConfirm  = "Confirm password"
)

const checkingNotice = "Checking verification..."

type formField struct {
	label  string
	value  string
	secret bool
}

func loginFields(email string) []formField {
	return []formField{
		{label: fieldEmail, value: email},
		{label: fieldPassword, secret: true},
	}
}

func registerFields(email string) []formField {
	return []formField{
		{label: fieldEmail, value: email},
		{label: fieldUsername},
		{label: fieldPassword, secret: true},
		{label: fieldConfirm, secret: true},
	}
}

// Deps wires the model to the session and the transcription cycle.
type Deps struct {
	Session   *session.Store
	Cycle     *cycle.Orchestrator
	ExportDir string
	Logger    logrus.FieldLogger
}

// Model is the root bubbletea model for the transcribe TUI.
type Model struct {
	sess      *session.Store
	orch      *cycle.Orchestrator
	exportDir string
	log       logrus.FieldLogger

	// Session
	screen    Screen
	snap      session.Snapshot
	expiresAt time.Time
	hasExpiry bool

	// Auth form
	mode     AuthMode
	fields   []formField
	focus    int
	authBusy bool

	// Cycle
	cycle     cycle.State
	ticking   bool
	now       time.Time
	pathInput bool
	path      string

	// UI state
	width            int
	height           int
	transcriptScroll int

	// Messages
	notice         string
	errorMessage   string
	errorTransient bool
}

// New creates a Model that starts by restoring the saved session.
func New(d Deps) Model {
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	dir := d.ExportDir
	if dir == "" {
		dir = "."
	}
	m := Model{
		sess:      d.Session,
		orch:      d.Cycle,
		exportDir: dir,
		log:       log,
		screen:    ScreenLoading,
		fields:    loginFields(""),
		now:       time.Now(),
	}
	if m.orch != nil {
		m.cycle = m.orch.State()
	}
	return m
}

// Init restores the session and starts listening for cycle changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(restoreCmd(m.sess), readEventCmd(m.orch))
}

// restoreCmd loads the persisted session without touching the network.
func restoreCmd(s *session.Store) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Restore(context.Background())
		return SessionRestoredMsg{Snapshot: s.Snapshot(), Err: err}
	}
}

// revalidateCmd confirms the session with the backend.
func revalidateCmd(s *session.Store) tea.Cmd {
	return func() tea.Msg {
		err := s.Revalidate(context.Background())
		return SessionValidatedMsg{Snapshot: s.Snapshot(), Err: err}
	}
}

func loginCmd(s *session.Store, email, password string) tea.Cmd {
	return func() tea.Msg {
		_, err := s.Login(context.Background(), email, password)
		return AuthResultMsg{Snapshot: s.Snapshot(), Err: err}
	}
}

func registerCmd(s *session.Store, r session.Registration) tea.Cmd {
	return func() tea.Msg {
		msg, err := s.Register(context.Background(), r)
		return RegisterResultMsg{Email: strings.TrimSpace(r.Email), Message: msg, Err: err}
	}
}

func resendCmd(s *session.Store) tea.Cmd {
	return func() tea.Msg {
		return ResendResultMsg{Err: s.ResendVerification(context.Background())}
	}
}

// logoutCmd drops the open cycle before clearing the credentials.
func logoutCmd(s *session.Store, o *cycle.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		if o != nil {
			o.Reset()
		}
		return LoggedOutMsg{Err: s.Logout(context.Background())}
	}
}

// readEventCmd waits for the next cycle change.
func readEventCmd(o *cycle.Orchestrator) tea.Cmd {
	if o == nil {
		return nil
	}
	return func() tea.Msg {
		<-o.Events()
		return CycleEventMsg{}
	}
}

func cycleCmd(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return CycleResultMsg{Action: action, Err: fn()}
	}
}

func startRecordingCmd(o *cycle.Orchestrator) tea.Cmd {
	return cycleCmd("record", func() error {
		return o.StartRecording(context.Background())
	})
}

func stopRecordingCmd(o *cycle.Orchestrator) tea.Cmd {
	return cycleCmd("stop", func() error {
		_, err := o.StopRecording()
		return err
	})
}

func selectFileCmd(o *cycle.Orchestrator, path string) tea.Cmd {
	return cycleCmd("open", func() error {
		_, err := o.SelectFile(path)
		return err
	})
}

func transcribeCmd(o *cycle.Orchestrator) tea.Cmd {
	return cycleCmd("transcribe", func() error {
		return o.Transcribe(context.Background())
	})
}

func resetCmd(o *cycle.Orchestrator) tea.Cmd {
	return cycleCmd("reset", func() error {
		o.Reset()
		return nil
	})
}

func saveCmd(o *cycle.Orchestrator, format result.Format, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := o.Save(format, dir)
		return SavedMsg{Path: path, Err: err}
	}
}

func recordingTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return RecordingTickMsg{Time: t}
	})
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SessionRestoredMsg:
		m.applySession(msg.Snapshot)
		if msg.Err != nil {
			m.log.WithError(msg.Err).Warn("restore session")
			m.setError(msg.Err, false)
		}
		if !msg.Snapshot.IsAuthenticated() {
			return m, nil
		}
		return m, revalidateCmd(m.sess)

	case SessionValidatedMsg:
		checking := m.notice == checkingNotice
		m.applySession(msg.Snapshot)
		if msg.Err == nil {
			if checking {
				m.notice = ""
				if m.screen == ScreenVerify {
					m.notice = "Your email is not verified yet."
				}
			}
			return m, nil
		}
		if msg.Snapshot.IsAuthenticated() {
			return m, m.setError(fmt.Errorf("could not confirm session: %w", msg.Err), true)
		}
		m.setError(msg.Err, false)
		return m, nil

	case AuthResultMsg:
		m.authBusy = false
		if msg.Err != nil {
			m.setError(msg.Err, false)
			return m, nil
		}
		m.clearMessages()
		m.fields = loginFields("")
		m.focus = 0
		m.applySession(msg.Snapshot)
		return m, nil

	case RegisterResultMsg:
		m.authBusy = false
		if msg.Err != nil {
			m.setError(msg.Err, false)
			return m, nil
		}
		m.mode = ModeLogin
		m.fields = loginFields(msg.Email)
		m.focus = 1
		m.clearMessages()
		m.notice = msg.Message
		return m, nil

	case ResendResultMsg:
		if msg.Err != nil {
			return m, m.setError(msg.Err, true)
		}
		m.clearMessages()
		m.notice = "Verification email sent to " + m.email()
		return m, nil

	case LoggedOutMsg:
		m.applySession(session.Snapshot{})
		m.mode = ModeLogin
		m.fields = loginFields("")
		m.focus = 0
		m.pathInput = false
		m.transcriptScroll = 0
		m.clearMessages()
		if msg.Err != nil {
			m.log.WithError(msg.Err).Warn("logout")
			m.setError(msg.Err, false)
			return m, nil
		}
		m.notice = "Logged out"
		return m, nil

	case CycleEventMsg:
		prev := m.cycle
		m.cycle = m.orch.State()
		cmds := []tea.Cmd{readEventCmd(m.orch)}
		if m.cycle.Err != nil && !sameErr(prev.Err, m.cycle.Err) {
			m.setError(m.cycle.Err, false)
		}
		if m.cycle.Result != nil && prev.Result == nil {
			m.transcriptScroll = 0
			m.notice = "Transcription complete"
		}
		if rec, ok := m.cycle.Audio.(audio.Recording); ok && !m.ticking {
			m.ticking = true
			m.now = rec.StartedAt
			cmds = append(cmds, recordingTickCmd())
		}
		return m, tea.Batch(cmds...)

	case CycleResultMsg:
		switch {
		case msg.Err == nil, errors.Is(msg.Err, cycle.ErrAbandoned):
			return m, nil
		case errors.Is(msg.Err, job.ErrInFlight):
			return m, m.setError(errors.New("a transcription is already running"), true)
		}
		m.log.WithError(msg.Err).WithField("action", msg.Action).Debug("cycle action failed")
		return m, m.setError(msg.Err, true)

	case SavedMsg:
		if msg.Err != nil {
			return m, m.setError(msg.Err, true)
		}
		m.clearMessages()
		m.notice = "Saved " + msg.Path
		return m, nil

	case RecordingTickMsg:
		if _, ok := m.cycle.Audio.(audio.Recording); !ok {
			m.ticking = false
			return m, nil
		}
		m.now = msg.Time
		return m, recordingTickCmd()

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// applySession switches to the screen the snapshot allows.
func (m *Model) applySession(snap session.Snapshot) {
	m.snap = snap
	m.hasExpiry = false
	if m.sess != nil && snap.IsAuthenticated() {
		m.expiresAt, m.hasExpiry = m.sess.ExpiresAt()
	}
	switch {
	case !snap.IsAuthenticated():
		m.screen = ScreenAuth
	case !snap.IsVerified():
		m.screen = ScreenVerify
	default:
		m.screen = ScreenRecorder
	}
}

func (m *Model) setError(err error, transient bool) tea.Cmd {
	m.notice = ""
	m.errorMessage = err.Error()
	m.errorTransient = transient
	if transient {
		return clearTransientErrorCmd()
	}
	return nil
}

func (m *Model) clearMessages() {
	m.notice = ""
	m.errorMessage = ""
	m.errorTransient = false
}

func (m Model) email() string {
	if m.snap.User == nil {
		return ""
	}
	return m.snap.User.Email
}

func (m Model) recording() bool {
	_, ok := m.cycle.Audio.(audio.Recording)
	return ok
}

func sameErr(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return errors.Is(a, b)
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		return m, tea.Quit
	}

	switch m.screen {
	case ScreenAuth:
		return m.handleAuthKey(msg)
	case ScreenVerify:
		return m.handleVerifyKey(msg)
	case ScreenRecorder:
		if m.pathInput {
			return m.handlePathKey(msg)
		}
		return m.handleRecorderKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.authBusy {
		return m, nil
	}

	switch msg.String() {
	case KeyTab, KeyDown:
		m.focus = (m.focus + 1) % len(m.fields)
	case KeyShiftTab, KeyUp:
		m.focus = (m.focus + len(m.fields) - 1) % len(m.fields)
	case KeyToggleMode:
		email := m.value(fieldEmail)
		if m.mode == ModeLogin {
			m.mode = ModeRegister
			m.fields = registerFields(email)
		} else {
			m.mode = ModeLogin
			m.fields = loginFields(email)
		}
		m.focus = 0
		m.clearMessages()
	case KeyEnter:
		if m.focus < len(m.fields)-1 {
			m.focus++
			return m, nil
		}
		return m.submitAuth()
	case KeyBackspace:
		m.fields = editField(m.fields, m.focus, func(v string) string {
			_, size := utf8.DecodeLastRuneInString(v)
			return v[:len(v)-size]
		})
	default:
		var typed string
		switch msg.Type {
		case tea.KeyRunes:
			typed = string(msg.Runes)
		case tea.KeySpace:
			typed = " "
		default:
			return m, nil
		}
		m.fields = editField(m.fields, m.focus, func(v string) string { return v + typed })
	}
	return m, nil
}

// editField returns a copy of fields with field i rewritten by fn.
func editField(fields []formField, i int, fn func(string) string) []formField {
	out := make([]formField, len(fields))
	copy(out, fields)
	out[i].value = fn(out[i].value)
	return out
}

func (m Model) value(label string) string {
	for _, f := range m.fields {
		if f.label == label {
			return f.value
		}
	}
	return ""
}

func (m Model) submitAuth() (tea.Model, tea.Cmd) {
	m.clearMessages()
	m.authBusy = true
	email := strings.TrimSpace(m.value(fieldEmail))
	if m.mode == ModeLogin {
		return m, loginCmd(m.sess, email, m.value(fieldPassword))
	}
	return m, registerCmd(m.sess, session.Registration{
		Email:           email,
		Username:        strings.TrimSpace(m.value(fieldUsername)),
		Password:        m.value(fieldPassword),
		ConfirmPassword: m.value(fieldConfirm),
	})
}

func (m Model) handleVerifyKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper:
		return m, tea.Quit
	case KeyResend:
		m.clearMessages()
		return m, resendCmd(m.sess)
	case KeyCheckAgain:
		m.clearMessages()
		m.notice = checkingNotice
		return m, revalidateCmd(m.sess)
	case KeyLogout:
		return m, logoutCmd(m.sess, m.orch)
	}
	return m, nil
}

func (m Model) handleRecorderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper:
		return m, tea.Quit

	case KeySpace:
		m.clearMessages()
		if m.recording() {
			return m, stopRecordingCmd(m.orch)
		}
		return m, startRecordingCmd(m.orch)

	case KeyOpenFile:
		m.clearMessages()
		m.pathInput = true
		m.path = ""
		return m, nil

	case KeyEnter, KeyTranscribe:
		m.clearMessages()
		return m, transcribeCmd(m.orch)

	case KeyReset:
		m.clearMessages()
		m.transcriptScroll = 0
		return m, resetCmd(m.orch)

	case KeySaveText:
		return m, saveCmd(m.orch, result.FormatText, m.exportDir)
	case KeySaveJSON:
		return m, saveCmd(m.orch, result.FormatJSON, m.exportDir)
	case KeySaveSRT:
		return m, saveCmd(m.orch, result.FormatSRT, m.exportDir)
	case KeySaveVTT:
		return m, saveCmd(m.orch, result.FormatVTT, m.exportDir)

	case KeyUp:
		m.scrollBy(-1)
		return m, nil
	case KeyDown:
		m.scrollBy(1)
		return m, nil
	case KeyPgUp:
		m.scrollBy(-m.transcriptVisibleLines())
		return m, nil
	case KeyPgDown:
		m.scrollBy(m.transcriptVisibleLines())
		return m, nil

	case KeyLogout:
		return m, logoutCmd(m.sess, m.orch)
	}

	return m, nil
}

func (m Model) handlePathKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.pathInput = false
		m.path = ""
		return m, nil
	case KeyEnter:
		m.pathInput = false
		path := cleanPath(m.path)
		m.path = ""
		if path == "" {
			return m, nil
		}
		return m, selectFileCmd(m.orch, path)
	case KeyBackspace:
		_, size := utf8.DecodeLastRuneInString(m.path)
		m.path = m.path[:len(m.path)-size]
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		m.path += string(msg.Runes)
	case tea.KeySpace:
		m.path += " "
	}
	return m, nil
}

// cleanPath accepts paths pasted or dropped into the terminal: quoted, or
// starting with "~/".
func cleanPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), `"'`)
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return p
}

func (m *Model) scrollBy(n int) {
	m.transcriptScroll += n
	if maxScroll := m.maxTranscriptScroll(); m.transcriptScroll > maxScroll {
		m.transcriptScroll = maxScroll
	}
	if m.transcriptScroll < 0 {
		m.transcriptScroll = 0
	}
}

func (m Model) maxTranscriptScroll() int {
	total := len(m.transcriptLines(m.width))
	visible := m.transcriptVisibleLines() - 1
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + prompt(1) + notice(1) + error(1) + footer(1)
	reserved := 8
	return max(5, m.height-reserved)
}

// transcriptLines wraps the result for display with speaker headers
// highlighted.
func (m Model) transcriptLines(width int) []string {
	if m.cycle.Result == nil || m.cycle.Result.Empty() {
		return nil
	}
	if width == 0 {
		width = 80
	}
	return ui.HighlightSpeakers(wrapText(m.cycle.Result.Display(), max(10, width-2)))
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	switch m.screen {
	case ScreenAuth:
		return m.renderAuth()
	case ScreenVerify:
		return m.renderVerify()
	case ScreenRecorder:
		return m.renderRecorder()
	}
	return m.renderHeader() + "\n\n  " + ui.DimStyle.Render("Restoring session...")
}

func (m Model) divider() string {
	return ui.DividerStyle.Render(strings.Repeat("─", m.width))
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("TRANSCRIBE")
	if m.snap.User == nil {
		return title
	}

	who := ui.DimStyle.Render(" — " + m.snap.User.Email)
	var expiry string
	if m.hasExpiry {
		expiry = ui.DimStyle.Render("  session until " + m.expiresAt.Local().Format("Jan 2 15:04"))
	}
	return title + who + expiry
}

func (m Model) renderMessages(sections []string) []string {
	if m.notice != "" {
		sections = append(sections, ui.NoticeStyle.Render(m.notice))
	}
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	return sections
}

func (m Model) renderAuth() string {
	var heading string
	if m.mode == ModeLogin {
		heading = ui.PanelTitleActiveStyle.Render("LOG IN")
	} else {
		heading = ui.PanelTitleActiveStyle.Render("CREATE ACCOUNT")
	}

	sections := []string{m.renderHeader(), m.divider(), heading, ""}
	for i, f := range m.fields {
		val := f.value
		if f.secret {
			val = strings.Repeat("•", utf8.RuneCountInString(val))
		}
		prefix := "  "
		if i == m.focus {
			prefix = ui.SelectedStyle.Render("> ")
			val = ui.InputFocusedStyle.Render(val + "▌")
		}
		sections = append(sections, prefix+ui.InputLabelStyle.Render(f.label)+val)
	}
	sections = append(sections, "")

	if m.authBusy {
		busy := "⟳ Logging in..."
		if m.mode == ModeRegister {
			busy = "⟳ Creating account..."
		}
		sections = append(sections, ui.SpinnerStyle.Render(busy))
	}
	sections = m.renderMessages(sections)
	sections = append(sections, m.divider(), m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderVerify() string {
	sections := []string{m.renderHeader(), m.divider(), ui.WarningStyle.Render("EMAIL NOT VERIFIED"), ""}
	text := fmt.Sprintf("A verification link was sent to %s. Open it, then press c to continue.", m.email())
	for _, l := range wrapText(text, max(20, m.width-2)) {
		sections = append(sections, "  "+l)
	}
	sections = append(sections, "")
	sections = m.renderMessages(sections)
	sections = append(sections, m.divider(), m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderRecorder() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, m.divider())
	sections = append(sections, m.renderTranscriptPanel(m.width, m.transcriptVisibleLines()))
	if m.pathInput {
		sections = append(sections, ui.PanelTitleActiveStyle.Render("Audio file: ")+m.path+"▌")
	}
	sections = append(sections, m.divider())
	sections = m.renderMessages(sections)
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderStatusBar() string {
	var dot string
	switch s := m.cycle.Audio.(type) {
	case audio.Recording:
		dot = ui.RecordingDotStyle.Render("● REC " + formatElapsed(m.now.Sub(s.StartedAt)))
	case audio.Captured:
		dot = ui.CapturedDotStyle.Render("◆ READY") +
			ui.DimStyle.Render(fmt.Sprintf(" %s (%s)", s.Artifact.Filename, formatSize(s.Artifact.Size())))
	default:
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	var jobInfo string
	switch {
	case m.cycle.Job != nil:
		st := string(m.cycle.Job.Status)
		jobInfo = "  " + ui.DimStyle.Render("job "+shortID(m.cycle.Job.ID)+" ") + ui.StatusStyleFor(st).Render(st)
		if m.cycle.Busy {
			jobInfo += "  " + ui.SpinnerStyle.Render("⟳")
		}
	case m.cycle.Busy:
		jobInfo = "  " + ui.SpinnerStyle.Render("⟳ uploading")
	}

	return dot + jobInfo
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var header string
	if m.cycle.Result != nil {
		chars := utf8.RuneCountInString(m.cycle.Result.Display())
		header = ui.PanelTitleActiveStyle.Render("TRANSCRIPT") + ui.DimStyle.Render(fmt.Sprintf(" (%d characters)", chars))
	} else {
		header = ui.PanelTitleStyle.Render("TRANSCRIPT")
	}

	lines := []string{header}
	contentHeight := height - 1

	switch {
	case m.cycle.Result != nil && m.cycle.Result.Empty():
		lines = append(lines, "", ui.DimStyle.Render("  The transcription is empty."))
	case m.cycle.Result != nil:
		display := m.transcriptLines(width)
		start := min(m.transcriptScroll, max(0, len(display)-contentHeight))
		end := min(start+contentHeight, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+display[i])
		}
	case m.cycle.Busy:
		lines = append(lines, "", ui.SpinnerStyle.Render("  Transcribing... long recordings take a while."))
	case m.recording():
		lines = append(lines, "", ui.DimStyle.Render("  Recording. Press Space to stop."))
	default:
		if c, ok := m.cycle.Audio.(audio.Captured); ok {
			lines = append(lines, "", ui.DimStyle.Render("  Press Enter to transcribe "+c.Artifact.Filename))
		} else {
			lines = append(lines, "", ui.DimStyle.Render("  Press Space to record or o to open an audio file"))
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	switch m.screen {
	case ScreenAuth:
		parts = append(parts, ui.Key("Enter", "Submit"), ui.Key("Tab", "Next"))
		if m.mode == ModeLogin {
			parts = append(parts, ui.Key("Ctrl+R", "Create account"))
		} else {
			parts = append(parts, ui.Key("Ctrl+R", "Log in"))
		}
		parts = append(parts, ui.Key("Ctrl+C", "Quit"))
		return strings.Join(parts, "  ")

	case ScreenVerify:
		parts = append(parts, ui.Key("r", "Resend email"), ui.Key("c", "Check again"), ui.Key("L", "Log out"))

	case ScreenRecorder:
		if m.pathInput {
			return strings.Join([]string{ui.Key("Enter", "Open"), ui.Key("Esc", "Cancel")}, "  ")
		}
		if m.recording() {
			parts = append(parts, ui.Key("Space", "Stop"))
		} else {
			parts = append(parts, ui.Key("Space", "Record"), ui.Key("o", "Open file"))
		}
		if _, ok := m.cycle.Audio.(audio.Captured); ok && !m.cycle.Busy {
			parts = append(parts, ui.Key("Enter", "Transcribe"))
		}
		parts = append(parts, ui.Key("x", "Reset"))
		if m.cycle.Result != nil {
			parts = append(parts, ui.Key("s/j/v/w", "Save txt/json/srt/vtt"), ui.Key("↑↓", "Scroll"))
		}
		parts = append(parts, ui.Key("L", "Log out"))
	}

	parts = append(parts, ui.Key("q", "Quit"))
	return strings.Join(parts, "  ")
}

// Helpers

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatSize(n int) string {
	switch {
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
