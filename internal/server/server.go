package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buildwave/apiserver/config"
	"github.com/buildwave/apiserver/internal/db"
	"github.com/buildwave/apiserver/internal/handlers"
	"github.com/buildwave/apiserver/internal/mq"
	"github.com/buildwave/apiserver/internal/services"
	"github.com/buildwave/apiserver/internal/storage"
	"github.com/buildwave/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server wraps the HTTP server and its infrastructure handles.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
}

// New constructs a Server with the full route tree and middleware stack.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objectStorage, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	mqClient, err := mq.NewFromConfig(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	var publisher services.EventPublisher
	if mqClient != nil {
		publisher = mqClient
	}

	userRepo := store.NewUserRepository(dbConn)
	projectRepo := store.NewProjectRepository(dbConn)
	timelineRepo := store.NewTimelineRepository(dbConn)
	deliverableRepo := store.NewDeliverableRepository(dbConn)
	testimonialRepo := store.NewTestimonialRepository(dbConn)

	userService := services.NewUserService(userRepo)
	projectService := services.NewProjectService(projectRepo, timelineRepo, userRepo, objectStorage, publisher)
	deliverableService := services.NewDeliverableService(deliverableRepo, projectRepo, timelineRepo, objectStorage, publisher)
	testimonialService := services.NewTestimonialService(testimonialRepo, cfg.Testimonials.FeatureRequiresApproval)

	authMiddleware := handlers.RequireAuth(jwtSecret)
	optionalAuth := handlers.OptionalAuth(jwtSecret)
	adminOnly := handlers.RequireAdmin(userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret, cfg.Auth.TokenTTL)
	})
	router.Route("/projects", func(r chi.Router) {
		handlers.ProjectRouter(r, projectService, deliverableService, userService, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserProjectsRouter(r, projectService, deliverableService, userService, authMiddleware)
	})
	router.Route("/testimonials", func(r chi.Router) {
		handlers.TestimonialRouter(r, testimonialService, optionalAuth)
	})
	router.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware, adminOnly)
		r.Route("/testimonials", func(r chi.Router) {
			handlers.AdminTestimonialRouter(r, testimonialService)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.AdminUserRouter(r, userService)
		})
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
		mq:         mqClient,
	}, nil
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
	if s.mq != nil {
		_ = s.mq.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
