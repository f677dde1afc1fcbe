// Package result holds the finished transcript of the current cycle and
// renders it into downloadable files.
package result

import (
	"strings"
	"sync"

	"github.com/jwulff/transcribe/internal/api"
)

// Segment is one timed utterance.
type Segment = api.Segment

// Result is a completed transcript.
type Result struct {
	Text         string               `json:"text"`
	SpeakersText string               `json:"speakers_text"`
	Speakers     map[string][]Segment `json:"speakers"`
}

// FromStatus builds a Result from a completed status response.
func FromStatus(resp api.StatusResponse) Result {
	var r Result
	if resp.Text != nil {
		r.Text = *resp.Text
	}
	if resp.SpeakersText != nil {
		r.SpeakersText = *resp.SpeakersText
	}
	r.Speakers = resp.Speakers
	return r
}

// FromTranscription builds a Result from a stored transcription.
func FromTranscription(tr api.Transcription) Result {
	var r Result
	if tr.Text != nil {
		r.Text = *tr.Text
	}
	if tr.SpeakersText != nil {
		r.SpeakersText = *tr.SpeakersText
	}
	r.Speakers = tr.Speakers
	return r
}

// Display returns the text shown to the user: the speaker transcript when
// present, the plain text otherwise.
func (r Result) Display() string {
	if r.SpeakersText != "" {
		return r.SpeakersText
	}
	return r.Text
}

// Empty reports whether there is nothing to show or export.
func (r Result) Empty() bool {
	return r.Text == "" && r.SpeakersText == "" && len(r.Speakers) == 0
}

// Preview flattens text to one line of at most n runes.
func Preview(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n-1]) + "…"
}

// Cache holds at most one Result.
type Cache struct {
	mu  sync.RWMutex
	res *Result
}

// Put replaces the cached result.
func (c *Cache) Put(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res = &r
}

// Get returns the cached result, if any.
func (c *Cache) Get() (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.res == nil {
		return Result{}, false
	}
	return *c.res, true
}

// Clear drops the cached result.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res = nil
}
