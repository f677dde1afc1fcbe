package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is where the backend listens in a local setup.
const DefaultBaseURL = "http://localhost:5070"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// Error is a non-2xx response from the backend. Message is the backend's
// own explanation and is empty when it sent none.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", fallback(e.Message, http.StatusText(e.StatusCode)), e.StatusCode)
}

// IsUnauthorized reports whether err is a backend 401.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// DecodeError means the backend answered but the body could not be parsed.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Client talks to the transcription backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets a per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for a user and bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return AuthResponse{}, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return AuthResponse{}, &Error{StatusCode: http.StatusOK, Message: fallback(resp.Message, "login failed")}
	}
	return resp, nil
}

// Register creates an account. The account must be verified before login.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var resp AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "", req, &resp); err != nil {
		return AuthResponse{}, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return AuthResponse{}, &Error{StatusCode: http.StatusOK, Message: fallback(resp.Message, "registration failed")}
	}
	return resp, nil
}

// Me returns the authoritative user record for token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var resp MeResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", token, nil, &resp); err != nil {
		return User{}, err
	}
	if resp.Status != "success" || resp.User == nil {
		return User{}, &DecodeError{Path: "/auth/me", Err: errors.New("missing user")}
	}
	return *resp.User, nil
}

// ResendVerification asks the backend to send another verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}
	return c.doJSON(ctx, http.MethodPost, "/auth/resend-verification", "", body, nil)
}

// Logout tells the backend the token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload sends one audio file as the multipart field "file" and returns the
// job handle.
func (c *Client) Upload(ctx context.Context, token, filename, contentType string, data io.Reader) (UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return UploadResponse{}, fmt.Errorf("write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("close form: %w", err)
	}

	var resp UploadResponse
	if err := c.do(ctx, http.MethodPost, "/upload", token, &buf, mw.FormDataContentType(), &resp); err != nil {
		return UploadResponse{}, err
	}
	if resp.UUID == "" {
		return UploadResponse{}, &DecodeError{Path: "/upload", Err: errors.New("missing uuid")}
	}
	return resp, nil
}

// Status returns the current state of a job.
func (c *Client) Status(ctx context.Context, token, id string) (StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/status/"+url.PathEscape(id), token, nil, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// History returns one page of the user's past transcriptions.
func (c *Client) History(ctx context.Context, token string, q HistoryQuery) (HistoryResponse, error) {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	path := "/transcriptions/history"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var resp HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return HistoryResponse{}, err
	}
	if resp.Status != "success" {
		return HistoryResponse{}, &Error{StatusCode: http.StatusOK, Message: fallback(resp.Message, "failed to fetch transcriptions")}
	}
	return resp, nil
}

// Transcription returns one stored transcription.
func (c *Client) Transcription(ctx context.Context, token, id string) (Transcription, error) {
	var resp struct {
		Status        string         `json:"status"`
		Transcription *Transcription `json:"transcription"`
	}
	path := "/transcriptions/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return Transcription{}, err
	}
	if resp.Transcription == nil {
		return Transcription{}, &DecodeError{Path: path, Err: errors.New("missing transcription")}
	}
	return *resp.Transcription, nil
}

// UpdateTranscription edits the stored text of a transcription.
func (c *Client) UpdateTranscription(ctx context.Context, token, id string, upd TranscriptionUpdate) (Transcription, error) {
	var resp struct {
		Status        string         `json:"status"`
		Transcription *Transcription `json:"transcription"`
	}
	path := "/transcriptions/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodPut, path, token, upd, &resp); err != nil {
		return Transcription{}, err
	}
	if resp.Transcription == nil {
		return Transcription{}, &DecodeError{Path: path, Err: errors.New("missing transcription")}
	}
	return *resp.Transcription, nil
}

// DeleteTranscription removes a transcription and its audio.
func (c *Client) DeleteTranscription(ctx context.Context, token, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/transcriptions/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, token, body, contentType, out)
}

// errorBody covers both error shapes the backend uses.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return &Error{StatusCode: resp.StatusCode, Message: fallback(eb.Message, eb.Error)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

func fallback(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
