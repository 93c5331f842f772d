package system

import (
	"net/http"
	"sync/atomic"

	"github.com/aerth/contactd/contact"
	"github.com/aerth/contactd/flash"
	"github.com/pkg/errors"
)

// Flash texts shown to the visitor.
const (
	MsgMissingField = "All fields are required!"
	MsgInvalidEmail = "Please enter a valid email address."
	MsgSent         = "Your message has been sent!"
)

// maxFormMemory is the part of a multipart body kept in memory, the rest
// spills to temporary files.
const maxFormMemory = 1 << 20

// ContactHandler serves the contact form on "/".
//
// GET renders an empty form. POST validates the submission and either
// re-renders it with an error flash or redirects back to "/" with a
// success flash. Submissions are neither stored nor sent anywhere.
func (s *System) ContactHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		if s.config.Sec.ServePublic {
			s.StaticHandler(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Allow", "GET, HEAD, POST, OPTIONS")
		return
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		http.Error(w, "bad method", http.StatusMethodNotAllowed)
		return
	}

	sess, err := s.flashes.Load(r)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", clientIP(r)).Msg("discarding flash session")
	}
	if sess == nil {
		sess = flash.NewSession()
	}

	if r.Method != http.MethodPost {
		s.servePage(w, r, sess, contact.Submission{})
		return
	}

	if err := parseForm(r); err != nil {
		s.log.Warn().Err(err).Msg("error parsing form")
		http.Error(w, "form parse error", http.StatusBadRequest)
		return
	}
	sub := contact.Parse(r.PostForm)
	if err := sub.Validate(); err != nil {
		var text string
		switch {
		case errors.Is(err, contact.ErrMissingField):
			text = MsgMissingField
		case errors.Is(err, contact.ErrInvalidEmail):
			text = MsgInvalidEmail
		default:
			s.log.Error().Err(err).Msg("error validating submission")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		atomic.AddUint64(&s.stats.rejected, 1)
		s.log.Info().Err(err).Str("ip", clientIP(r)).Msg("rejected submission")
		sess.Set(text, flash.Error)
		s.servePage(w, r, sess, sub)
		return
	}

	// nothing is saved and no mail goes out
	atomic.AddUint64(&s.stats.accepted, 1)
	s.log.Info().Str("ip", clientIP(r)).Int("message_len", len(sub.Message)).Msg("accepted submission")
	sess.Set(MsgSent, flash.Success)
	if err := s.flashes.Save(w, r, sess); err != nil {
		s.log.Error().Err(err).Msg("error saving flash session")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// parseForm fills r.PostForm from a url-encoded or multipart body.
func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	err := r.ParseMultipartForm(maxFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}
