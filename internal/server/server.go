// Package server accepts client connections, decodes RESP requests and
// feeds them to the engine one command at a time per connection. Replies
// are pipelined: the output buffer is only flushed when the client has no
// further request bytes waiting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/config"
	"github.com/duskdb/duskdb/internal/engine"
	"github.com/duskdb/duskdb/internal/metrics"
	"github.com/duskdb/duskdb/internal/resp"
)

// Server owns the TCP listener and the set of connected peers.
type Server struct {
	engine *engine.Engine
	cfg    *config.Config
	logger *zap.Logger

	listener net.Listener
	peers    *xsync.MapOf[string, *Peer]
	httpSrv  *http.Server
	httpLn   net.Listener

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func New(eng *engine.Engine, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		engine: eng,
		cfg:    cfg,
		logger: logger,
		peers:  xsync.NewMapOf[string, *Peer](),
	}
}

// Listen binds the TCP address and, when enabled, the side HTTP listener.
// It returns once both listeners are bound; Serve drives the accept loop.
func (s *Server) Listen() error {
	address := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("listening", zap.String("address", address))

	if s.cfg.Metrics.Enabled {
		if err := s.startHTTP(); err != nil {
			listener.Close() //nolint:errcheck
			return err
		}
	}
	return nil
}

// Addr returns the bound TCP address. Useful when the configured port is 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// MetricsAddr returns the bound HTTP address, or nil when metrics are off.
func (s *Server) MetricsAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection processes one client's command stream.
func (s *Server) handleConnection(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("client connected", zap.String("addr", addr))
	}

	peer := NewPeer(conn)
	s.peers.Store(addr, peer)
	metrics.ConnectionsOpen.Inc()

	defer func() {
		peer.Close() //nolint:errcheck
		s.peers.Delete(addr)
		metrics.ConnectionsOpen.Dec()
		if s.logger.Core().Enabled(zap.DebugLevel) {
			s.logger.Debug("client disconnected", zap.String("addr", addr))
		}
	}()

	for {
		cmdValue, err := peer.ReadCommand()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("read command failed", zap.Error(err))
			}
			return
		}

		if cmdValue.Type != resp.TypeArray || len(cmdValue.Array) == 0 {
			continue
		}

		commandName := strings.ToUpper(string(cmdValue.Array[0].String))
		args := cmdValue.Array[1:]

		result := s.engine.Execute(commandName, args)

		if err = peer.Send(result); err != nil {
			s.logger.Error("error writing response", zap.Error(err))
			return
		}

		if peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				return
			}
		}
	}
}

// startHTTP exposes the prometheus scrape endpoint plus small health and
// stats endpoints on a separate listener.
func (s *Server) startHTTP() error {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	ln, err := net.Listen("tcp", s.cfg.Metrics.Addr)
	if err != nil {
		return err
	}
	s.httpLn = ln
	s.httpSrv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("metrics listener started", zap.String("addr", ln.Addr().String()))
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.engine.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"}) //nolint:errcheck
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Stats()
	stats["connections"] = s.peers.Size()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats) //nolint:errcheck
}

// Shutdown stops accepting, closes every peer and waits for the handlers,
// bounded by the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close() //nolint:errcheck
		}
		if s.httpSrv != nil {
			s.httpSrv.Shutdown(ctx) //nolint:errcheck
		}

		s.peers.Range(func(_ string, p *Peer) bool {
			p.Close() //nolint:errcheck
			return true
		})

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
