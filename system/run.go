package system

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Run serves h on the configured addresses until ctx is done, then shuts
// the servers down. SIGUSR2 reloads templates; with Meta.livetemplate set
// they are also reloaded on every change in the template directory.
func (s *System) Run(ctx context.Context, h http.Handler) error {
	g, ctx := errgroup.WithContext(ctx)

	servers := []*http.Server{s.newServer(s.config.Meta.ListenAddr, h)}
	g.Go(func() error {
		s.log.Info().Str("addr", s.config.Meta.ListenAddr).Str("siteurl", s.config.Meta.SiteURL).Msg("serving HTTP")
		return listen(servers[0].ListenAndServe())
	})
	if s.config.Meta.TLSCert != "" && s.config.Meta.ListenAddrTLS != "" {
		tlsServer := s.newServer(s.config.Meta.ListenAddrTLS, h)
		servers = append(servers, tlsServer)
		g.Go(func() error {
			s.log.Info().Str("addr", s.config.Meta.ListenAddrTLS).Msg("serving TLS")
			return listen(tlsServer.ListenAndServeTLS(s.config.Meta.TLSCert, s.config.Meta.TLSKey))
		})
	}

	if s.config.Meta.LiveTemplate {
		g.Go(func() error {
			return s.pages.Watch(ctx)
		})
	}

	g.Go(func() error {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGUSR2)
		defer signal.Stop(sigchan)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigchan:
				s.log.Info().Msg("reloading templates")
				if err := s.ReloadTemplates(); err != nil {
					s.log.Error().Err(err).Msg("error reloading templates")
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var firstErr error
		for _, srv := range servers {
			if err := srv.Shutdown(sctx); err != nil && firstErr == nil {
				firstErr = errors.Wrapf(err, "shutting down %s", srv.Addr)
			}
		}
		s.log.Info().Msg("stopped serving")
		return firstErr
	})

	return g.Wait()
}

func (s *System) newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func listen(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
