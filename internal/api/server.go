package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gallery-core/internal/gallery"
	"github.com/nerrad567/gallery-core/internal/infrastructure/config"
	"github.com/nerrad567/gallery-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// limiterSweepInterval is how often idle per-client limiters are dropped.
const limiterSweepInterval = time.Minute

// HealthChecker is a component whose health is reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LoginRecorder receives a point for every login rejected by the rate
// limiter. Satisfied by *influxdb.Client.
type LoginRecorder interface {
	RecordLoginAttempt(outcome string)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config         config.APIConfig
	Session        config.SessionConfig
	Security       config.SecurityConfig
	Logger         *logging.Logger
	Gallery        *gallery.Service
	MaxUploadBytes int64
	Telemetry      LoginRecorder            // optional
	Health         map[string]HealthChecker // optional: reported on /health
	Version        string
}

// Server is the HTTP API server for the gallery.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	sessionCfg   config.SessionConfig
	logger       *logging.Logger
	gallery      *gallery.Service
	maxUpload    int64
	telemetry    LoginRecorder
	health       map[string]HealthChecker
	version      string
	apiLimiter   *clientLimiter // nil when rate limiting is disabled
	loginLimiter *clientLimiter // nil when rate limiting is disabled
	server       *http.Server
	cancel       context.CancelFunc // stops the limiter sweep on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gallery == nil {
		return nil, fmt.Errorf("gallery service is required")
	}
	if deps.Session.CookieName == "" {
		return nil, fmt.Errorf("session cookie name is required")
	}

	s := &Server{
		cfg:        deps.Config,
		sessionCfg: deps.Session,
		logger:     deps.Logger,
		gallery:    deps.Gallery,
		maxUpload:  deps.MaxUploadBytes,
		telemetry:  deps.Telemetry,
		health:     deps.Health,
		version:    deps.Version,
	}

	if rl := deps.Security.RateLimit; rl.Enabled {
		s.apiLimiter = newClientLimiter(perMinute(rl.RequestsPerMinute), rl.RequestsPerMinute)
		window := time.Duration(rl.LoginWindow) * time.Minute
		s.loginLimiter = newClientLimiter(everyWindow(window, rl.LoginAttempts), rl.LoginAttempts)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.apiLimiter != nil {
		go s.apiLimiter.run(srvCtx, limiterSweepInterval)
		go s.loginLimiter.run(srvCtx, limiterSweepInterval)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
