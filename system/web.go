package system

import (
	"bytes"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/aerth/contactd/contact"
	"github.com/aerth/contactd/flash"
	"github.com/crewjam/csp"
	"github.com/google/uuid"
	"github.com/gorilla/csrf"
)

// Router wires every route. Only the form is behind CSRF protection.
func (s *System) Router() http.Handler {
	secure := s.config.SecureCookies()
	CSRF := csrf.Protect(s.keys.CSRF,
		csrf.Secure(secure),
		csrf.FieldName("_csrf"),
		csrf.CookieName(s.config.Sec.CookieName+"_csrf"),
		csrf.ErrorHandler(http.HandlerFunc(s.csrfFailure)))

	router := &http.ServeMux{}
	router.Handle("/status", http.HandlerFunc(s.StatusHandler))

	// static files
	if s.config.Meta.PathPublic != "" {
		for _, p := range []string{"/favicon.ico", "/favicon.png", "/css/", "/js/", "/robots.txt"} {
			router.Handle(p, http.HandlerFunc(s.StaticHandler))
		}
	}

	router.Handle("/", plaintext(!secure, CSRF(http.HandlerFunc(s.ContactHandler))))
	return s.HitCounter(router)
}

// plaintext tells the CSRF check that requests arriving without TLS are
// plain http, so it skips the https-only Referer check. It is a no-op
// unless enabled.
func plaintext(enabled bool, h http.Handler) http.Handler {
	if !enabled {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		h.ServeHTTP(w, r)
	})
}

func (s *System) csrfFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Warn().Err(csrf.FailureReason(r)).Str("ip", clientIP(r)).Msg("csrf check failed")
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (s *System) SetCSPHeader(w http.ResponseWriter) {
	u, err := url.Parse(s.config.Meta.SiteURL)
	if err != nil {
		s.log.Warn().Err(err).Msg("cant set Content-Security-Policy")
		return
	}
	val := csp.Header{
		DefaultSrc: []string{"'self'", u.Hostname()},
	}.String()
	w.Header().Set("Content-Security-Policy", val)
}

// servePage renders the form with sub's values and every pending flash,
// then saves the now empty session.
func (s *System) servePage(w http.ResponseWriter, r *http.Request, sess *flash.Session, sub contact.Submission) {
	const tname = "index.html"
	var pageTitle = s.config.Meta.SiteName
	if pageTitle != "" {
		pageTitle += " | "
	}
	pageTitle += "Contact"

	buf := &bytes.Buffer{}
	err := s.pages.Render(buf, tname, map[string]interface{}{
		csrf.TemplateTag: csrf.TemplateField(r),
		"csrfToken":      csrf.Token(r),
		"pageTitle":      pageTitle,
		"sitename":       s.config.Meta.SiteName,
		"copyrightname":  s.config.Meta.CopyrightName,
		"form":           sub,
		"flashes":        sess.PopAll(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("template", tname).Msg("error rendering page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := s.flashes.Save(w, r, sess); err != nil {
		s.log.Error().Err(err).Msg("error saving flash session")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	s.SetCSPHeader(w)
	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := buf.WriteTo(w); err != nil {
		s.log.Debug().Err(err).Msg("error writing page")
	}
}

func (s *System) StaticHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "bad method on staticHandler", http.StatusMethodNotAllowed)
		return
	}
	if s.config.Meta.PathPublic == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Expires", time.Now().Add(time.Hour*24).UTC().Truncate(time.Second).Format(http.TimeFormat))
	filename := filepath.Join(s.config.Meta.PathPublic, filepath.FromSlash(r.URL.Path))
	http.ServeFile(w, r, filename)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// HitCounter http middleware that logs and counts
func (s *System) HitCounter(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t1 := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		s.countHit()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sr, r)

		s.log.Info().
			Str("request_id", id).
			Str("host", r.Host).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", clientIP(r)).
			Str("user_agent", truncate(r.UserAgent(), 50)).
			Int("status", sr.status).
			Dur("took", time.Since(t1)).
			Msg("request")
	})
}

// clientIP is the remote address plus X-Forwarded-For, for logs only.
func clientIP(r *http.Request) string {
	ipaddr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ipaddr = r.RemoteAddr
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ipaddr += " " + strings.TrimSpace(fwd)
	}
	return ipaddr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
