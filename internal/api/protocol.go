// Package api provides the client and wire types for the transcription
// backend's REST interface.
package api

// User is the identity record returned by the auth endpoints.
type User struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	Username        *string `json:"username,omitempty"`
	IsActive        bool    `json:"is_active"`
	IsVerified      bool    `json:"is_verified"`
	IsAdmin         bool    `json:"is_admin"`
	EmailVerifiedAt *string `json:"email_verified_at,omitempty"`
	LastLoginAt     *string `json:"last_login_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

// AuthResponse is returned by login and register. Register never carries a
// token.
type AuthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
	Token   string `json:"token,omitempty"`
}

// MeResponse is returned by GET /auth/me.
type MeResponse struct {
	Status string `json:"status"`
	User   *User  `json:"user"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Status              string `json:"status"`
	Message             string `json:"message"`
	UUID                string `json:"uuid"`
	TranscriptionStatus string `json:"transcription_status"`
}

// Segment is one timed utterance of a speaker.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// StatusResponse is returned by GET /status/{uuid}. The transcript fields
// are only set once Status is "completed".
type StatusResponse struct {
	Status       string               `json:"status"`
	Progress     int                  `json:"progress,omitempty"`
	Message      string               `json:"message,omitempty"`
	UUID         string               `json:"uuid,omitempty"`
	Text         *string              `json:"text,omitempty"`
	SpeakersText *string              `json:"speakers_text,omitempty"`
	Speakers     map[string][]Segment `json:"speakers,omitempty"`
	Language     *string              `json:"language,omitempty"`
}

// Audio describes the uploaded file behind a transcription.
type Audio struct {
	ID        string   `json:"id"`
	Filename  string   `json:"filename"`
	FileSize  int64    `json:"file_size"`
	Duration  *float64 `json:"duration"`
	Format    *string  `json:"format"`
	CreatedAt string   `json:"created_at"`
}

// Transcription is a stored transcription as listed by the history endpoints.
type Transcription struct {
	ID           string               `json:"id"`
	Text         *string              `json:"text"`
	SpeakersText *string              `json:"speakers_text"`
	Speakers     map[string][]Segment `json:"speakers"`
	Language     *string              `json:"language"`
	Status       string               `json:"status"`
	IsEdited     bool                 `json:"is_edited"`
	CreatedAt    string               `json:"created_at"`
	UpdatedAt    string               `json:"updated_at"`
	Audio        *Audio               `json:"audio,omitempty"`
}

// Pagination is the page envelope of the history listing.
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// HistoryQuery selects a page of the history listing. Zero values are left
// to the backend defaults.
type HistoryQuery struct {
	Page    int
	PerPage int
	Status  string
}

// HistoryResponse is returned by GET /transcriptions/history.
type HistoryResponse struct {
	Status         string          `json:"status"`
	Message        string          `json:"message,omitempty"`
	Transcriptions []Transcription `json:"transcriptions"`
	Pagination     Pagination      `json:"pagination"`
}

// TranscriptionUpdate is the body of PUT /transcriptions/{id}. Nil fields
// are left untouched.
type TranscriptionUpdate struct {
	Text         *string `json:"text,omitempty"`
	SpeakersText *string `json:"speakers_text,omitempty"`
}

// StringPtr returns a pointer to s. Convenience for building updates.
func StringPtr(s string) *string { return &s }
