package flash

import (
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/pkg/errors"
)

// CookieStore keeps the messages themselves in a signed (and, with a block
// key, encrypted) cookie.
type CookieStore struct {
	name    string
	secure  bool
	cookies *securecookie.SecureCookie
}

// NewCookieStore returns a CookieStore. blockKey may be nil for signed but
// unencrypted cookies.
func NewCookieStore(name string, hashKey, blockKey []byte, secure bool) *CookieStore {
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &CookieStore{name: name, secure: secure, cookies: sc}
}

func (c *CookieStore) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return NewSession(), nil
	}
	var msgs []Message
	if err := c.cookies.Decode(c.name, cookie.Value, &msgs); err != nil {
		// loaded so Save clears the bad cookie
		return &Session{loaded: true, dirty: true}, errors.Wrap(ErrBadSession, err.Error())
	}
	return &Session{messages: msgs, loaded: true}, nil
}

func (c *CookieStore) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	if !s.dirty {
		return nil
	}
	if len(s.messages) == 0 {
		if s.loaded {
			expireCookie(w, c.name)
		}
		return nil
	}
	encoded, err := c.cookies.Encode(c.name, s.messages)
	if err != nil {
		return errors.Wrap(err, "encoding flash cookie")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
