// Package server is the TCP shell around the router: it accepts connections and runs the per-connection read and
// write pumps. One goroutine pair per connection; the router below it is shared.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/config"
	"github.com/relaychat/relay-server/internal/router"
)

// Server accepts chat connections and wires each one to the router.
type Server struct {
	rt  *router.Router
	cfg *config.Config
	log zerolog.Logger

	ln net.Listener
	wg sync.WaitGroup

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// New creates a server around an already constructed router.
func New(rt *router.Router, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		rt:    rt,
		cfg:   cfg,
		log:   logger.With().Str("component", "server").Logger(),
		conns: make(map[*conn]struct{}),
	}
}

// Listen binds the chat port. Split from Serve so callers (and tests, via ":0") learn the bound address before any
// connection is accepted.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Chat listener bound")
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until the context is cancelled. It blocks; run it in its own goroutine. On return every
// per-connection goroutine has exited.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
		s.closeAll()
	}()

	for {
		sock, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := newConn(sock, s.cfg.MaxFrameBytes, s.cfg.SendBufferSize, s.cfg.WriteTimeout, s.log)
		s.track(c)
		s.log.Debug().Str("conn_id", c.id.String()).Str("remote", sock.RemoteAddr().String()).Msg("Connection accepted")

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			c.writeLoop()
		}()
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			c.readLoop(ctx, s.rt)
		}()
	}
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// closeAll severs every live connection so the pump goroutines unblock during shutdown.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.close()
	}
}
