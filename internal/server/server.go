package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/furniro/apiserver/config"
	"github.com/furniro/apiserver/internal/handlers"
	"github.com/furniro/apiserver/internal/mq"
	"github.com/furniro/apiserver/internal/services"
	"github.com/furniro/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, the router and the backing clients.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	stores     *Stores
	storage    *storage.Storage
	mq         *mq.MQ
	logger     *zap.Logger
}

// New wires repositories, optional object storage and event bus, services
// and routes. Every client opened before a failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Server, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	srv := &Server{logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, srv.closeClients())
		}
	}()

	if srv.stores, err = OpenStores(ctx, cfg); err != nil {
		return nil, err
	}
	if srv.storage, err = storage.Open(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	if srv.mq, err = mq.Open(ctx, cfg.MQ); err != nil {
		return nil, err
	}

	var images services.ImageStorage
	if srv.storage != nil {
		images = srv.storage
	}
	var events services.EventPublisher
	if srv.mq != nil {
		events = mq.NewEventPublisher(srv.mq, cfg.MQ.Channel)
	}

	hasher := services.NewBcryptHasher(cfg.Auth.BcryptCost)
	userService := services.NewUserService(srv.stores.Users, events, logger)
	authService := services.NewAuthService(srv.stores.Users, hasher, events, logger)
	newsService := services.NewNewsService(srv.stores.News, images, events, logger)

	authn := handlers.NewAuthenticator(userService, jwtSecret, cfg.Auth.TokenTTL, cfg.Auth.OpenAdminAPI, logger)
	if cfg.Auth.OpenAdminAPI {
		logger.Warn("admin routes are open to unauthenticated callers")
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		handlers.AuthRouter(r, authService, authn, logger)
		handlers.UserRouter(r, userService, authn.RequireAdmin, logger)
		r.Route("/news", func(r chi.Router) {
			handlers.NewsRouter(r, newsService, authn.RequireAdmin, logger)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 5000
	}

	srv.router = router
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then closes the backing clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return multierr.Append(err, s.closeClients())
}

func (s *Server) closeClients() error {
	var err error
	if s.mq != nil {
		err = multierr.Append(err, s.mq.Close())
	}
	if s.storage != nil {
		err = multierr.Append(err, s.storage.Close())
	}
	if s.stores != nil {
		err = multierr.Append(err, s.stores.Close())
	}
	return err
}
