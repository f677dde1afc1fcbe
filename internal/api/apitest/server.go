// Package apitest runs an in-process fake of the transcription backend for
// tests. Job status sequences are scripted per upload.
package apitest

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwulff/transcribe/internal/api"
)

// Step is one scripted answer to GET /status/{uuid}. A non-zero Code makes
// the fake reply with that HTTP status; a non-empty Raw is written verbatim.
type Step struct {
	Response api.StatusResponse
	Code     int
	Raw      string
}

// StatusStep is a Step answering with the given status and no transcript.
func StatusStep(status string) Step {
	return Step{Response: api.StatusResponse{Status: status}}
}

// CompletedStep is a Step answering "completed" with the given transcript.
func CompletedStep(text, speakersText string, speakers map[string][]api.Segment) Step {
	resp := api.StatusResponse{Status: "completed", Speakers: speakers}
	if text != "" {
		resp.Text = api.StringPtr(text)
	}
	if speakersText != "" {
		resp.SpeakersText = api.StringPtr(speakersText)
	}
	return Step{Response: resp}
}

type fakeUser struct {
	user    api.User
	hash    []byte
	resends int
}

type fakeJob struct {
	id        string
	owner     string
	filename  string
	size      int64
	steps     []Step
	polls     int
	status    string
	text      *string
	spkText   *string
	speakers  map[string][]api.Segment
	edited    bool
	createdAt time.Time
}

// Server is a fake backend bound to an httptest.Server.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	secret      []byte
	users       map[string]*fakeUser
	jobs        map[string]*fakeJob
	order       []string
	script      []Step
	uploadFail  *Step
	calls       map[string]int
	total       int
	uploadNames []string
}

// New starts a fake backend and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		secret: []byte("apitest-secret"),
		users:  make(map[string]*fakeUser),
		jobs:   make(map[string]*fakeJob),
		calls:  make(map[string]int),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.count)

	auth := r.Group("/auth")
	auth.POST("/login", s.login)
	auth.POST("/register", s.register)
	auth.POST("/resend-verification", s.resend)
	auth.GET("/me", s.requireUser, s.me)
	auth.POST("/logout", s.requireUser, s.logout)

	r.POST("/upload", s.requireUser, s.upload)
	r.GET("/status/:uuid", s.requireUser, s.status)

	tr := r.Group("/transcriptions", s.requireUser)
	tr.GET("/:id", s.getTranscription)
	tr.PUT("/:id", s.updateTranscription)
	tr.DELETE("/:id", s.deleteTranscription)
	return r
}

func (s *Server) count(c *gin.Context) {
	path := c.Request.URL.Path
	s.mu.Lock()
	s.total++
	s.calls[c.Request.Method+" "+path]++
	if key := routeKey(path); key != path {
		s.calls[c.Request.Method+" "+key]++
	}
	s.mu.Unlock()
	c.Next()
}

// routeKey collapses ids so call counts can be asserted per endpoint.
func routeKey(path string) string {
	switch {
	case strings.HasPrefix(path, "/status/"):
		return "/status/*"
	case strings.HasPrefix(path, "/transcriptions/") && path != "/transcriptions/history":
		return "/transcriptions/*"
	}
	return path
}

// Calls returns how many requests hit "METHOD /path". Paths with ids may be
// given either literally or with "*" (e.g. "GET /status/*").
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests the fake has served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// AddUser creates an account directly, bypassing registration.
func (s *Server) AddUser(email, password string, verified bool) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, "", verified)
}

func (s *Server) addUserLocked(email, password, username string, verified bool) api.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := api.User{
		ID:         uuid.NewString(),
		Email:      email,
		IsActive:   true,
		IsVerified: verified,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if username != "" {
		u.Username = api.StringPtr(username)
	}
	s.users[email] = &fakeUser{user: u, hash: hash}
	return u
}

// Verify marks an account as verified, as following the email link would.
func (s *Server) Verify(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		u.user.IsVerified = true
	}
}

// Resends returns how many verification emails were requested for email.
func (s *Server) Resends(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u.resends
	}
	return 0
}

// Token issues a bearer token for email valid for ttl.
func (s *Server) Token(email string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return tok
}

// Script sets the status sequence for the next upload. The last step
// repeats once the sequence is exhausted.
func (s *Server) Script(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = steps
}

// FailNextUpload makes the next upload answer with code and body.
func (s *Server) FailNextUpload(code int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFail = &Step{Code: code, Raw: body}
}

// Uploads returns the filenames received by /upload, in order.
func (s *Server) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploadNames...)
}

// Polls returns how many status requests a job has received.
func (s *Server) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.polls
	}
	return 0
}

func (s *Server) requireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if header == "" || raw == header {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is missing"})
		return
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		msg := "Token is invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Token has expired"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
		return
	}

	s.mu.Lock()
	u, ok := s.users[claims.Subject]
	s.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "User not found"})
		return
	}
	c.Set("email", u.user.Email)
	c.Next()
}

func (s *Server) login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No data provided"})
		return
	}
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Email and password are required"})
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid email or password"})
		return
	}

	s.mu.Lock()
	now := time.Now().UTC().Format(time.RFC3339)
	u.user.LastLoginAt = &now
	user := u.user
	s.mu.Unlock()

	c.JSON(http.StatusOK, api.AuthResponse{
		Status:  "success",
		Message: "Login successful",
		User:    &user,
		Token:   s.Token(req.Email, 7*24*time.Hour),
	})
}

func (s *Server) register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No data provided"})
		return
	}
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Email and password are required"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Password must be at least 6 characters long"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "User with this email already exists"})
		return
	}
	s.addUserLocked(req.Email, req.Password, req.Username, false)
	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "User registered successfully. Please check your email to verify your account.",
	})
}

func (s *Server) resend(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Email]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if u.user.IsVerified {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is already verified"})
		return
	}
	u.resends++
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Verification email sent successfully"})
}

func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	user := s.users[c.GetString("email")].user
	s.mu.Unlock()
	c.JSON(http.StatusOK, api.MeResponse{Status: "success", User: &user})
}

func (s *Server) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged out successfully"})
}

func (s *Server) upload(c *gin.Context) {
	s.mu.Lock()
	fail := s.uploadFail
	s.uploadFail = nil
	s.mu.Unlock()
	if fail != nil {
		c.Data(fail.Code, "application/json", []byte(fail.Raw))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file part"})
		return
	}
	if fh.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.script
	if len(steps) == 0 {
		steps = []Step{CompletedStep("ok", "", nil)}
	}
	j := &fakeJob{
		id:        uuid.NewString(),
		owner:     c.GetString("email"),
		filename:  fh.Filename,
		size:      fh.Size,
		steps:     steps,
		status:    "pending",
		createdAt: time.Now().UTC(),
	}
	s.jobs[j.id] = j
	s.order = append(s.order, j.id)
	s.uploadNames = append(s.uploadNames, fh.Filename)

	c.JSON(http.StatusOK, api.UploadResponse{
		Status:              "success",
		Message:             "File uploaded successfully. Transcription started.",
		UUID:                j.id,
		TranscriptionStatus: "pending",
	})
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	j, ok := s.jobs[c.Param("uuid")]
	if !ok || j.owner != c.GetString("email") {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Transcription not found"})
		return
	}
	idx := j.polls
	if idx >= len(j.steps) {
		idx = len(j.steps) - 1
	}
	step := j.steps[idx]
	j.polls++
	if step.Code == 0 && step.Raw == "" {
		j.status = step.Response.Status
		if step.Response.Status == "completed" {
			j.text = step.Response.Text
			j.spkText = step.Response.SpeakersText
			j.speakers = step.Response.Speakers
		}
	}
	s.mu.Unlock()

	switch {
	case step.Raw != "":
		code := step.Code
		if code == 0 {
			code = http.StatusOK
		}
		c.Data(code, "application/json", []byte(step.Raw))
	case step.Code != 0:
		c.JSON(step.Code, gin.H{"error": http.StatusText(step.Code)})
	default:
		resp := step.Response
		resp.UUID = j.id
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) transcriptionLocked(j *fakeJob) api.Transcription {
	return api.Transcription{
		ID:           j.id,
		Text:         j.text,
		SpeakersText: j.spkText,
		Speakers:     j.speakers,
		Status:       j.status,
		IsEdited:     j.edited,
		CreatedAt:    j.createdAt.Format(time.RFC3339),
		UpdatedAt:    j.createdAt.Format(time.RFC3339),
		Audio: &api.Audio{
			ID:        j.id,
			Filename:  j.filename,
			FileSize:  j.size,
			CreatedAt: j.createdAt.Format(time.RFC3339),
		},
	}
}

func (s *Server) ownedJob(c *gin.Context) (*fakeJob, bool) {
	j, ok := s.jobs[c.Param("id")]
	if !ok || j.owner != c.GetString("email") {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Transcription not found"})
		return nil, false
	}
	return j, true
}

func (s *Server) getTranscription(c *gin.Context) {
	if c.Param("id") == "history" {
		s.history(c)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.ownedJob(c)
	if !ok {
		return
	}
	tr := s.transcriptionLocked(j)
	c.JSON(http.StatusOK, gin.H{"status": "success", "transcription": tr})
}

func (s *Server) updateTranscription(c *gin.Context) {
	var upd api.TranscriptionUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "No data provided"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.ownedJob(c)
	if !ok {
		return
	}
	if upd.Text != nil {
		j.text = upd.Text
		j.edited = true
	}
	if upd.SpeakersText != nil {
		j.spkText = upd.SpeakersText
		j.edited = true
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"message":       "Transcription updated successfully",
		"transcription": s.transcriptionLocked(j),
	})
}

func (s *Server) deleteTranscription(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.ownedJob(c)
	if !ok {
		return
	}
	delete(s.jobs, j.id)
	for i, id := range s.order {
		if id == j.id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Transcription deleted successfully"})
}

func (s *Server) history(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	status := c.Query("status")

	s.mu.Lock()
	defer s.mu.Unlock()

	// newest first
	var matched []*fakeJob
	for i := len(s.order) - 1; i >= 0; i-- {
		j := s.jobs[s.order[i]]
		if j.owner != c.GetString("email") {
			continue
		}
		if status != "" && j.status != status {
			continue
		}
		matched = append(matched, j)
	}
	total := len(matched)
	pages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := make([]api.Transcription, 0, end-start)
	for _, j := range matched[start:end] {
		items = append(items, s.transcriptionLocked(j))
	}

	c.JSON(http.StatusOK, api.HistoryResponse{
		Status:         "success",
		Transcriptions: items,
		Pagination: api.Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   pages,
			HasNext: page < pages,
			HasPrev: page > 1,
		},
	})
}

// String describes the fake for test failure messages.
func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("apitest.Server{url=%s users=%d jobs=%d}", s.URL, len(s.users), len(s.jobs))
}
