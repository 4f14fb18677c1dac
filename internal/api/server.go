package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/mqtt-journal/internal/archive"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-journal/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-journal/internal/journal"
	"github.com/nerrad567/mqtt-journal/internal/session"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// ErrMissingDependency is returned by New when a required Deps field is nil.
var ErrMissingDependency = errors.New("api: missing dependency")

// Deps is everything the HTTP API reads from or drives.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Persistence config.PersistenceConfig
	Logger      *logging.Logger
	Session     *session.Session
	Journal     *journal.Journal
	Archive     *archive.Repository // nil disables the /archive routes
	Version     string
}

// Server serves the REST endpoints and the live message stream.
//
// The stream hub is created by New so it can be added as a session
// observer before the session starts delivering:
//
//	srv, err := api.New(deps)
//	sess.AddObserver(srv.Hub())
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	deps   Deps
	logger *logging.Logger
	hub    *Hub

	server   *http.Server
	listener net.Listener
	stopHub  context.CancelFunc
}

// New validates deps and builds an unstarted Server.
//
// Returns:
//   - error: ErrMissingDependency naming the nil Logger, Session or Journal
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	case deps.Session == nil:
		return nil, fmt.Errorf("%w: session", ErrMissingDependency)
	case deps.Journal == nil:
		return nil, fmt.Errorf("%w: journal", ErrMissingDependency)
	}

	logger := deps.Logger.With("component", "api")
	return &Server{
		deps:   deps,
		logger: logger,
		hub:    NewHub(deps.WS, deps.Journal, logger),
	}, nil
}

// Hub returns the stream hub; register it with session.AddObserver.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds api.host:api.port and serves in the background. A bind
// failure such as a port in use is returned here. Port 0 binds a free
// port, reported by Addr.
//
// The stream hub runs until ctx ends or Close is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.deps.Config.Host, strconv.Itoa(s.deps.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	hubCtx, stop := context.WithCancel(ctx)
	s.stopHub = stop
	go s.hub.Run(hubCtx)

	t := s.deps.Config.Timeouts
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: seconds(t.Read),
		ReadTimeout:       seconds(t.Read),
		WriteTimeout:      seconds(t.Write),
		IdleTimeout:       seconds(t.Idle),
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Addr is the bound listen address; empty until Start succeeds.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the stream hub and shuts the HTTP server down, giving open
// requests up to 10 seconds to finish. It is a no-op before Start.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.stopHub != nil {
		s.stopHub()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has been called.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api: server not started")
	}
	return nil
}
