package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aqylal/apiserver/config"
	"github.com/aqylal/apiserver/internal/db"
	"github.com/aqylal/apiserver/internal/events"
	"github.com/aqylal/apiserver/internal/handlers"
	"github.com/aqylal/apiserver/internal/metrics"
	"github.com/aqylal/apiserver/internal/services"
	"github.com/aqylal/apiserver/internal/snapshots"
	"github.com/aqylal/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *events.Bus
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userStore := store.NewUserStore(dbConn)
	sessionStore := store.NewSessionStore(dbConn)
	subjectStore := store.NewSubjectStore(dbConn)
	settingsStore := store.NewSettingsStore(dbConn)
	migrationStore := store.NewMigrationStore(dbConn)

	collector := metrics.NewCollector()

	bus, err := newEventBus(cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	archive, err := newSnapshotArchive(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userService := services.NewUserService(userStore, sessionStore, subjectStore, settingsStore)

	var publisher services.EventPublisher
	if bus != nil {
		publisher = bus
	}
	var snapshotter services.SnapshotArchive
	if archive != nil {
		snapshotter = archive
	}
	roleChangeService := services.NewRoleChangeService(userStore, migrationStore, publisher, snapshotter, collector)

	authMiddleware := handlers.RequireAuth(cfg.JWT.Secret, userStore)
	authHandler := handlers.NewAuthHandler(userService, cfg.JWT.Secret, cfg.JWT.TokenTTL, collector)
	userHandler := handlers.NewUserHandler(userService, roleChangeService, cfg.JWT.Secret, cfg.JWT.TokenTTL)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", collector.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userHandler, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
	}, nil
}

func newEventBus(cfg config.Config) (*events.Bus, error) {
	switch cfg.EventBackend {
	case "rabbitmq":
		backend, err := events.NewRabbitMQBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return events.NewBus(backend), nil
	case "pubsub":
		backend, err := events.NewPubSubBackend(context.Background(), cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return events.NewBus(backend), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event backend %q", cfg.EventBackend)
	}
}

func newSnapshotArchive(ctx context.Context, cfg config.Config) (*snapshots.Archive, error) {
	var backend snapshots.Backend
	switch cfg.SnapshotBackend {
	case "minio":
		minioBackend, err := snapshots.NewMinioBackend(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = minioBackend
	case "gcs":
		gcsBackend, err := snapshots.NewGCSBackend(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = gcsBackend
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}

	archive := snapshots.NewArchive(backend)
	if err := archive.EnsureBucket(ctx); err != nil {
		log.Printf("server: snapshot bucket check failed: %v", err)
	}
	return archive, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
