// Package session owns the signed-in user and bearer token, persists them as
// one pair and gates the transcription pipeline on them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/errs"
)

// Backend is the slice of the REST API the session needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) (api.AuthResponse, error)
	Me(ctx context.Context, token string) (api.User, error)
	ResendVerification(ctx context.Context, email string) error
	Logout(ctx context.Context, token string) error
}

// Persister stores the credential pair. Token and user are always written
// and cleared together.
type Persister interface {
	LoadCredentials() (string, *api.User, error)
	SaveCredentials(token string, user api.User) error
	ClearCredentials() error
}

// Snapshot is an immutable copy of the session at one instant.
type Snapshot struct {
	User  *api.User
	Token string
}

// IsAuthenticated reports whether both user and token are present.
func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil && s.Token != ""
}

// IsVerified reports whether the user may enter the transcription pipeline.
func (s Snapshot) IsVerified() bool {
	return s.IsAuthenticated() && s.User.IsVerified
}

// Store is the session store.
type Store struct {
	backend         Backend
	persist         Persister
	log             logrus.FieldLogger
	logoutOnInvalid bool
	serverLogout    bool
	now             func() time.Time

	mu    sync.RWMutex
	user  *api.User
	token string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithLogoutOnInvalid makes revalidation clear the session when the backend
// answers 401 or the token has expired. Transport errors never clear it.
func WithLogoutOnInvalid(v bool) Option {
	return func(s *Store) { s.logoutOnInvalid = v }
}

// WithServerLogout makes Logout also notify the backend, best effort.
func WithServerLogout(v bool) Option {
	return func(s *Store) { s.serverLogout = v }
}

// New returns an empty store. Call Restore to load a persisted session.
func New(backend Backend, persist Persister, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		persist: persist,
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Token: s.token}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// IsAuthenticated reports whether a user is signed in.
func (s *Store) IsAuthenticated() bool { return s.Snapshot().IsAuthenticated() }

// IsVerified reports whether the signed-in user has verified their email.
func (s *Store) IsVerified() bool { return s.Snapshot().IsVerified() }

// ExpiresAt returns the exp claim of the bearer token. The signature is not
// checked; the backend remains the authority.
func (s *Store) ExpiresAt() (time.Time, bool) {
	return tokenExpiry(s.Snapshot().Token)
}

func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *Store) expired(token string) bool {
	exp, ok := tokenExpiry(token)
	return ok && !s.now().Before(exp)
}

// Restore loads the persisted pair and installs it without asking the
// backend. It reports whether a session was installed. Call Revalidate
// afterwards to confirm it.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	token, user, err := s.persist.LoadCredentials()
	if err != nil {
		return false, err
	}
	if token == "" || user == nil {
		return false, nil
	}
	if s.logoutOnInvalid && s.expired(token) {
		s.log.WithField("email", user.Email).Info("persisted token expired, clearing session")
		return false, s.clear()
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	s.log.WithField("email", user.Email).Debug("session restored")
	return true, nil
}

// Revalidate asks the backend who the current token belongs to. On success
// the cached user is replaced and re-persisted. On failure the session is
// kept, unless WithLogoutOnInvalid is set and the failure is a 401 or an
// expired token. A response for a token that is no longer current is
// discarded.
func (s *Store) Revalidate(ctx context.Context) error {
	token := s.Snapshot().Token
	if token == "" {
		return nil
	}
	if s.logoutOnInvalid && s.expired(token) {
		s.clearIfCurrent(token)
		return &errs.AuthError{Msg: "session expired"}
	}

	user, err := s.backend.Me(ctx, token)
	if err != nil {
		if s.logoutOnInvalid && api.IsUnauthorized(err) {
			s.clearIfCurrent(token)
			return &errs.AuthError{Msg: "session is no longer valid", Err: err}
		}
		s.log.WithError(err).Warn("session revalidation failed, keeping session")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		s.log.Debug("discarding revalidation for replaced session")
		return nil
	}
	if err := s.persist.SaveCredentials(token, user); err != nil {
		s.log.WithError(err).Warn("re-persist session")
		return fmt.Errorf("save session: %w", err)
	}
	s.user = &user
	return nil
}

func (s *Store) clearIfCurrent(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		return
	}
	if err := s.clearLocked(); err != nil {
		s.log.WithError(err).Warn("clear session")
	}
}

// Login exchanges email and password for a session and persists it.
func (s *Store) Login(ctx context.Context, email, password string) (api.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		msg := "email and password are required"
		return api.User{}, &errs.AuthError{Msg: msg, Err: &errs.ValidationError{Msg: msg}}
	}

	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return api.User{}, &errs.AuthError{Msg: s.backendMessage(err, "login failed"), Err: err}
	}
	if resp.User == nil || resp.Token == "" {
		return api.User{}, &errs.AuthError{Msg: "login failed: no session returned"}
	}

	user := *resp.User
	s.mu.Lock()
	if err := s.persist.SaveCredentials(resp.Token, user); err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warn("persist session")
		return api.User{}, &errs.AuthError{Msg: "login failed: could not save session", Err: err}
	}
	s.token = resp.Token
	s.user = &user
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"email": user.Email, "verified": user.IsVerified}).Info("logged in")
	return user, nil
}

// Registration is the input of Register.
type Registration struct {
	Email           string
	Password        string
	ConfirmPassword string
	Username        string
}

// Register creates an account. It never signs in: the account must be
// verified and then logged into. It returns the backend's message.
func (s *Store) Register(ctx context.Context, r Registration) (string, error) {
	email := strings.TrimSpace(r.Email)
	if email == "" || r.Password == "" {
		return "", &errs.ValidationError{Msg: "email and password are required"}
	}
	if r.Password != r.ConfirmPassword {
		return "", &errs.ValidationError{Msg: "passwords do not match"}
	}

	resp, err := s.backend.Register(ctx, api.RegisterRequest{
		Email:    email,
		Password: r.Password,
		Username: strings.TrimSpace(r.Username),
	})
	if err != nil {
		return "", &errs.AuthError{Msg: s.backendMessage(err, "registration failed"), Err: err}
	}
	s.log.WithField("email", email).Info("registered")
	if resp.Message == "" {
		return "Registration successful. Please check your email to verify your account.", nil
	}
	return resp.Message, nil
}

// ResendVerification asks the backend to email the signed-in user again.
func (s *Store) ResendVerification(ctx context.Context) error {
	snap := s.Snapshot()
	if !snap.IsAuthenticated() {
		return &errs.AuthError{Msg: "not logged in"}
	}
	if err := s.backend.ResendVerification(ctx, snap.User.Email); err != nil {
		return &errs.AuthError{Msg: s.backendMessage(err, "failed to resend verification email"), Err: err}
	}
	return nil
}

// Logout clears the session in memory and on disk. It is idempotent.
func (s *Store) Logout(ctx context.Context) error {
	token := s.Snapshot().Token
	if s.serverLogout && token != "" {
		if err := s.backend.Logout(ctx, token); err != nil {
			s.log.WithError(err).Debug("server logout failed")
		}
	}
	return s.clear()
}

func (s *Store) clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

func (s *Store) clearLocked() error {
	s.token = ""
	s.user = nil
	return s.persist.ClearCredentials()
}

// Close releases the persister if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.persist.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// backendMessage picks the text shown to the user. Transport details go to
// the log only.
func (s *Store) backendMessage(err error, def string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return def
	}
	s.log.WithError(err).Warn(def)
	var decErr *api.DecodeError
	switch {
	case errors.As(err, &decErr):
		return def + ": unexpected response from server"
	case errors.Is(err, context.Canceled):
		return def + ": cancelled"
	}
	return def + ": cannot reach server"
}
