// Package flash carries one-shot notifications from one request to the next.
//
// A Store loads a request-scoped Session, handlers queue messages on it with
// Set and consume them with PopAll, and the Store writes whatever is left
// back to the client before the response body is written.
package flash

import (
	"net/http"

	"github.com/pkg/errors"
)

// Category of a flash message, used by templates for styling.
type Category string

const (
	Success Category = "success"
	Error   Category = "error"
)

// Message is a single flash notification.
type Message struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
}

// Flasher is the capability handlers need from a session.
type Flasher interface {
	Set(text string, c Category)
	PopAll() []Message
}

var _ Flasher = (*Session)(nil)

// Session holds the pending messages of one request.
type Session struct {
	id       string
	messages []Message
	loaded   bool // came from the client
	dirty    bool
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Set queues a message.
func (s *Session) Set(text string, c Category) {
	s.messages = append(s.messages, Message{Text: text, Category: c})
	s.dirty = true
}

// PopAll returns every queued message and empties the session.
func (s *Session) PopAll() []Message {
	msgs := s.messages
	if len(msgs) > 0 {
		s.messages = nil
		s.dirty = true
	}
	return msgs
}

// Len returns the number of queued messages.
func (s *Session) Len() int {
	return len(s.messages)
}

// Store persists a Session between requests.
type Store interface {
	// Load returns the session attached to r. A missing session is not an
	// error; a tampered or undecodable one returns an empty session and
	// ErrBadSession.
	Load(r *http.Request) (*Session, error)
	// Save writes the session back. It must be called before the
	// response header is written.
	Save(w http.ResponseWriter, r *http.Request, s *Session) error
}

var ErrBadSession = errors.New("flash: bad session")

func expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
