package flash

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
)

func TestSessionPopAll(t *testing.T) {
	var s Flasher = NewSession()
	s.Set("one", Success)
	s.Set("two", Error)
	got := s.PopAll()
	if len(got) != 2 || got[0].Text != "one" || got[1].Category != Error {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if again := s.PopAll(); len(again) != 0 {
		t.Fatalf("second PopAll returned %+v", again)
	}
}

// roundTrip saves sess through store and returns a request carrying the
// resulting cookies.
func roundTrip(t *testing.T, store Store, sess *Session) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := store.Save(rec, httptest.NewRequest(http.MethodPost, "/", nil), sess); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req, rec
}

func stores(t *testing.T) map[string]Store {
	hashKey := securecookie.GenerateRandomKey(64)
	blockKey := securecookie.GenerateRandomKey(32)
	bs, err := OpenBoltStore(filepath.Join(t.TempDir(), "flash.db"), "test_flash", hashKey, blockKey, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bs.Close() })
	return map[string]Store{
		"cookie": NewCookieStore("test_flash", hashKey, blockKey, false),
		"bolt":   bs,
	}
}

func TestStoreCarriesMessagesOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sess, err := store.Load(httptest.NewRequest(http.MethodPost, "/", nil))
			if err != nil {
				t.Fatal(err)
			}
			sess.Set("Your message has been sent!", Success)
			req, _ := roundTrip(t, store, sess)

			next, err := store.Load(req)
			if err != nil {
				t.Fatal(err)
			}
			msgs := next.PopAll()
			if len(msgs) != 1 || msgs[0].Text != "Your message has been sent!" || msgs[0].Category != Success {
				t.Fatalf("unexpected messages: %+v", msgs)
			}

			rec := httptest.NewRecorder()
			if err := store.Save(rec, req, next); err != nil {
				t.Fatal(err)
			}
			cleared := rec.Result().Cookies()
			if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
				t.Fatalf("expected an expired cookie, got %+v", cleared)
			}

			// replaying the old cookie must not show the message again on the bolt store
			if name == "bolt" {
				replay, err := store.Load(req)
				if err != nil {
					t.Fatal(err)
				}
				if replay.Len() != 0 {
					t.Fatalf("replayed session still has %d messages", replay.Len())
				}
			}
		})
	}
}

func TestStoreUntouchedSessionWritesNothing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			sess, err := store.Load(req)
			if err != nil {
				t.Fatal(err)
			}
			if got := sess.PopAll(); len(got) != 0 {
				t.Fatalf("fresh session has messages: %+v", got)
			}
			rec := httptest.NewRecorder()
			if err := store.Save(rec, req, sess); err != nil {
				t.Fatal(err)
			}
			if h := rec.Header().Get("Set-Cookie"); h != "" {
				t.Fatalf("unexpected Set-Cookie %q", h)
			}
		})
	}
}

func TestStoreRejectsForgedCookie(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: "test_flash", Value: "forged"})
			sess, err := store.Load(req)
			if err == nil {
				t.Fatal("expected error for forged cookie")
			}
			if sess == nil || sess.Len() != 0 {
				t.Fatalf("expected empty session, got %+v", sess)
			}
			rec := httptest.NewRecorder()
			if err := store.Save(rec, req, sess); err != nil {
				t.Fatal(err)
			}
			cookies := rec.Result().Cookies()
			if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
				t.Fatalf("expected forged cookie to be expired, got %+v", cookies)
			}
		})
	}
}

func openBolt(t *testing.T, path string) *BoltStore {
	t.Helper()
	bs, err := OpenBoltStore(path, "test_flash", securecookie.GenerateRandomKey(64), nil, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bs.Close() })
	return bs
}

// saveNew stores one message under a fresh session id, like a successful
// POST from a client without a flash cookie.
func saveNew(t *testing.T, b *BoltStore) *http.Request {
	t.Helper()
	sess := NewSession()
	sess.Set("Your message has been sent!", Success)
	req, _ := roundTrip(t, b, sess)
	return req
}

func TestBoltSweepRemovesExpiredSessions(t *testing.T) {
	b := openBolt(t, filepath.Join(t.TempDir(), "flash.db"))
	t0 := time.Now()
	b.now = func() time.Time { return t0 }
	for i := 0; i < 5; i++ {
		saveNew(t, b)
	}
	if n, err := b.Sweep(); err != nil || n != 0 {
		t.Fatalf("fresh sessions swept: n=%d err=%v", n, err)
	}
	if got := b.Len(); got != 5 {
		t.Fatalf("stored %d sessions, want 5", got)
	}

	b.now = func() time.Time { return t0.Add(MaxAge + time.Minute) }
	n, err := b.Sweep()
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || b.Len() != 0 {
		t.Fatalf("swept %d, %d left", n, b.Len())
	}
}

func TestBoltSweepsWhileSaving(t *testing.T) {
	b := openBolt(t, filepath.Join(t.TempDir(), "flash.db"))
	b.sweepEvery = 3
	t0 := time.Now()
	b.now = func() time.Time { return t0 }
	saveNew(t, b)
	saveNew(t, b)

	b.now = func() time.Time { return t0.Add(2 * MaxAge) }
	saveNew(t, b)
	if got := b.Len(); got != 1 {
		t.Fatalf("%d sessions left after third new session, want 1", got)
	}
}

func TestBoltSweepsOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.db")
	b := openBolt(t, path)
	b.now = func() time.Time { return time.Now().Add(-2 * MaxAge) }
	for i := 0; i < 3; i++ {
		saveNew(t, b)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	if got := openBolt(t, path).Len(); got != 0 {
		t.Fatalf("%d expired sessions survived reopening", got)
	}
}

func TestBoltExpiredSessionIsEmpty(t *testing.T) {
	b := openBolt(t, filepath.Join(t.TempDir(), "flash.db"))
	t0 := time.Now()
	b.now = func() time.Time { return t0 }
	req := saveNew(t, b)

	b.now = func() time.Time { return t0.Add(MaxAge + time.Second) }
	sess, err := b.Load(req)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Len() != 0 {
		t.Fatalf("expired session still has %d messages", sess.Len())
	}
	rec := httptest.NewRecorder()
	if err := b.Save(rec, req, sess); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatal("expired session not deleted")
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected an expired cookie, got %+v", cookies)
	}
}
