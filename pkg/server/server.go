package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/campusdesk/pkg/middleware"
	"github.com/vango-dev/campusdesk/pkg/persist"
	"github.com/vango-dev/campusdesk/pkg/store"
	"github.com/vango-dev/campusdesk/pkg/toast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Options are the collaborators a Server serves.
type Options struct {
	// Store is required.
	Store *store.Store

	// Notifier is required. The server does not close it.
	Notifier *toast.Notifier

	// Persistor, if set, is stopped (and so flushed) on shutdown.
	Persistor *persist.Persistor

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// TracerProvider traces API requests. Default: the global provider.
	TracerProvider trace.TracerProvider

	// Logger defaults to slog.Default() with component=server.
	Logger *slog.Logger
}

// Server serves the API and the live feed.
type Server struct {
	config    Config
	store     *store.Store
	notifier  *toast.Notifier
	persistor *persist.Persistor
	gatherer  prometheus.Gatherer
	tracer    trace.TracerProvider
	logger    *slog.Logger

	upgrader websocket.Upgrader
	hub      *hub
	handler  http.Handler

	unsubscribeStore  func()
	unsubscribeToasts func()

	mu           sync.Mutex
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a server and subscribes it to the store and the notifier.
func New(config Config, opts Options) *Server {
	config.applyDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config:    config,
		store:     opts.Store,
		notifier:  opts.Notifier,
		persistor: opts.Persistor,
		gatherer:  gatherer,
		tracer:    opts.TracerProvider,
		logger:    logger,
		hub:       newHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
	}
	s.handler = s.routes()

	s.unsubscribeStore = s.store.Subscribe(func() {
		s.hub.broadcast(encodeFrame(s.stateFrame()))
	})
	s.unsubscribeToasts = s.notifier.Subscribe(func(list []toast.Toast) {
		middleware.RecordToasts(len(list))
		s.hub.broadcast(encodeFrame(toastFrame(list)))
	})
	return s
}

func (s *Server) stateFrame() StateFrame {
	return StateFrame{Event: StateEvent, State: s.store.GetState()}
}

func toastFrame(list []toast.Toast) ToastFrame {
	if list == nil {
		list = []toast.Toast{}
	}
	return ToastFrame{Event: toast.EventName, Toasts: list}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(toast.Middleware(s.notifier))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWebSocket)

	traceOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}
	if s.tracer != nil {
		traceOpts = append(traceOpts, otelhttp.WithTracerProvider(s.tracer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(otelhttp.NewMiddleware("campusdesk.api", traceOpts...))
		r.Use(s.requestLogger)
		r.Get("/state", s.handleState)
		r.Post("/dispatch", s.handleDispatch)
		r.Get("/toasts", s.handleListToasts)
		r.Post("/toasts", s.handleEmitToast)
		r.Delete("/toasts/{id}", s.handleDismissToast)
	})
	return r
}

// requestLogger logs API requests with slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Clients returns the number of connected live-feed clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Listen binds the configured address. Use Addr to learn the port when
// the address is ":0".
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	srv, l := s.httpServer, s.listener
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			s.Shutdown(context.Background())
			return err
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		err := s.Shutdown(context.Background())
		<-errCh
		return err
	}
}

// Shutdown disconnects live-feed clients, stops the HTTP server and stops
// the persistor so pending state is flushed. It is bounded by
// ShutdownTimeout and idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		s.unsubscribeStore()
		s.unsubscribeToasts()

		var errs []error
		if err := s.hub.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}

		s.mu.Lock()
		srv, l := s.httpServer, s.listener
		s.mu.Unlock()
		if srv == nil && l != nil {
			l.Close()
		}
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Error("shutdown error", "error", err)
				errs = append(errs, err)
			}
		}

		if s.persistor != nil {
			if err := s.persistor.Stop(ctx); err != nil {
				s.logger.Error("final state flush failed", "error", err)
				errs = append(errs, err)
			}
		}

		s.shutdownErr = errors.Join(errs...)
		s.logger.Info("server shutdown complete")
	})
	return s.shutdownErr
}
