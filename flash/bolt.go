package flash

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var bucketFlashes = []byte("flashes")

// MaxAge is how long an unread flash session lives, in the database and in
// the client's cookie.
const MaxAge = time.Hour

// sweepEvery new sessions, expired records are removed.
const sweepEvery = 100

type record struct {
	Created  time.Time `json:"created"`
	Messages []Message `json:"messages"`
}

// BoltStore keeps messages server side in a bolt database. The client only
// holds a signed session id.
type BoltStore struct {
	name    string
	secure  bool
	db      *bolt.DB
	cookies *securecookie.SecureCookie

	now        func() time.Time
	sweepEvery uint64
	created    atomic.Uint64
}

// OpenBoltStore opens (or creates) the database at path and removes
// sessions older than MaxAge.
func OpenBoltStore(path, name string, hashKey, blockKey []byte, secure bool) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening flash database %q", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFlashes)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating flash bucket")
	}
	b := &BoltStore{
		name:       name,
		secure:     secure,
		db:         db,
		cookies:    securecookie.New(hashKey, blockKey).MaxAge(int(MaxAge / time.Second)),
		now:        time.Now,
		sweepEvery: sweepEvery,
	}
	if _, err := b.Sweep(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BoltStore) expired(rec record) bool {
	return b.now().Sub(rec.Created) > MaxAge
}

// Sweep deletes every session older than MaxAge and returns how many
// were removed. Unreadable records are removed too.
func (b *BoltStore) Sweep() (int, error) {
	var n int
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketFlashes)
		var stale [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil || b.expired(rec) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "sweeping flash sessions")
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (b *BoltStore) Len() (n int) {
	b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFlashes).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(b.name)
	if err != nil {
		return NewSession(), nil
	}
	var id string
	if err := b.cookies.Decode(b.name, cookie.Value, &id); err != nil {
		return &Session{loaded: true, dirty: true}, errors.Wrap(ErrBadSession, err.Error())
	}
	s := &Session{id: id, loaded: true}
	var rec record
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFlashes).Get([]byte(id))
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return s, errors.Wrapf(err, "reading flash session %s", id)
	}
	switch {
	case rec.Created.IsZero():
	case b.expired(rec):
		s.dirty = true // deleted on Save
	default:
		s.messages = rec.Messages
	}
	return s, nil
}

func (b *BoltStore) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	if !s.dirty {
		return nil
	}
	if len(s.messages) == 0 {
		if s.id != "" {
			if err := b.db.Update(func(tx *bolt.Tx) error {
				return tx.Bucket(bucketFlashes).Delete([]byte(s.id))
			}); err != nil {
				return errors.Wrapf(err, "deleting flash session %s", s.id)
			}
		}
		if s.loaded {
			expireCookie(w, b.name)
		}
		return nil
	}

	if s.id == "" {
		s.id = uuid.NewString()
		if b.created.Add(1)%b.sweepEvery == 0 {
			if _, err := b.Sweep(); err != nil {
				return err
			}
		}
	}
	v, err := json.Marshal(record{Created: b.now(), Messages: s.messages})
	if err != nil {
		return errors.Wrap(err, "encoding flash messages")
	}
	if err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFlashes).Put([]byte(s.id), v)
	}); err != nil {
		return errors.Wrapf(err, "writing flash session %s", s.id)
	}
	encoded, err := b.cookies.Encode(b.name, s.id)
	if err != nil {
		return errors.Wrap(err, "encoding session cookie")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     b.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(MaxAge / time.Second),
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
