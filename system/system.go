package system

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/aerth/contactd/config"
	"github.com/aerth/contactd/flash"
	"github.com/aerth/contactd/keys"
	"github.com/aerth/contactd/logger"
	"github.com/aerth/contactd/render"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// System is the running contact form service.
type System struct {
	config  config.Config
	keys    keys.Keys
	flashes flash.Store
	pages   *render.Renderer
	log     zerolog.Logger
	stats   stats
}

type stats struct {
	t1       time.Time
	hits     uint64
	accepted uint64
	rejected uint64
}

// Options are the collaborators of a System. Flashes and Pages are
// created from Config when nil.
type Options struct {
	Config  config.Config
	Keys    keys.Keys
	Flashes flash.Store
	Pages   *render.Renderer
	Log     zerolog.Logger
}

// New builds a System. The returned io.Closer releases the flash store.
func New(opts Options) (*System, io.Closer, error) {
	s := &System{
		config:  opts.Config,
		keys:    opts.Keys,
		flashes: opts.Flashes,
		pages:   opts.Pages,
		log:     opts.Log,
		stats:   stats{t1: time.Now()},
	}
	var closer io.Closer = nopCloser{}
	if s.flashes == nil {
		store, c, err := OpenFlashStore(s.config, s.keys)
		if err != nil {
			return nil, nil, err
		}
		s.flashes, closer = store, c
	}
	if s.pages == nil {
		pages, err := render.New(s.config.Meta.PathTemplates, !s.config.Meta.DevelopmentMode,
			logger.Component(s.log, "render"))
		if err != nil {
			closer.Close()
			return nil, nil, err
		}
		s.pages = pages
	}
	return s, closer, nil
}

// OpenFlashStore returns the flash store named by config.Sec.FlashStore.
func OpenFlashStore(cfg config.Config, k keys.Keys) (flash.Store, io.Closer, error) {
	var blockKey = k.Block
	if cfg.Meta.DevelopmentMode {
		blockKey = nil // not encrypted cookies
	}
	secure := cfg.SecureCookies()
	name := cfg.Sec.CookieName + "_flash"
	switch cfg.Sec.FlashStore {
	case "", config.FlashStoreCookie:
		return flash.NewCookieStore(name, k.Hash, blockKey, secure), nopCloser{}, nil
	case config.FlashStoreBolt:
		store, err := flash.OpenBoltStore(cfg.Sec.BoltDB, name, k.Hash, blockKey, secure)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, errors.Errorf("unknown flash store %q", cfg.Sec.FlashStore)
	}
}

// ReloadTemplates re-parses the page templates.
func (s *System) ReloadTemplates() error {
	return s.pages.Reload()
}

// Config returns a copy of the effective config.
func (s *System) Config() config.Config {
	return s.config
}

func (s *System) countHit() {
	atomic.AddUint64(&s.stats.hits, 1)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
