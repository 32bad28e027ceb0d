package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common"
	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/common/utils"
	"github.com/LexiconIndonesia/creator-crawler-service/handler"
	"github.com/LexiconIndonesia/creator-crawler-service/middlewares"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// routes groups the handlers mounted under /v1.
type routes struct {
	crawler  *handler.CrawlerHandler
	settings *handler.SettingsHandler
	runs     *handler.RunsHandler
	exports  *handler.ExportHandler
	health   *handler.HealthHandler
}

type AppHttpServer struct {
	router *chi.Mux
	cfg    config.Config
	server *http.Server
	routes routes
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-KEY"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(2 * time.Minute))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

func (s *AppHttpServer) setRoutes(rt routes) {
	s.routes = rt
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	// API Documentation with Swagger
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Public health endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": common.AppName,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.ApiKey(s.cfg.Security.BackendApiKey))

		if s.routes.crawler == nil {
			log.Warn().Msg("Crawler handler not set")
		} else {
			r.Mount("/crawler", s.routes.crawler.Router())
		}
		if s.routes.settings != nil {
			r.Mount("/settings", s.routes.settings.Router())
		}
		if s.routes.runs != nil {
			r.Mount("/runs", s.routes.runs.Router())
		}
		if s.routes.exports != nil {
			r.Mount("/exports", s.routes.exports.Router())
		}
		if s.routes.health != nil {
			r.Mount("/health", s.routes.health.Router())
		}
	})
}

func (s *AppHttpServer) start() error {
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         s.cfg.Listen.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
