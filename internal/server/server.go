package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gbyat/plugin-updater/internal/config"
	"github.com/gbyat/plugin-updater/internal/store"
	"github.com/gbyat/plugin-updater/internal/updater"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type Server struct {
	router      chi.Router
	log         *logrus.Logger
	updater     *updater.Updater
	store       store.Store
	config      *config.ServerConfig
	ghSemaphore *semaphore.Weighted
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) indexHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{
		"service": "plugin updater",
		"plugin":  s.updater.Basename(),
		"stage":   s.config.Stage,
		"version": s.config.Version,
	})
}

func New(log *logrus.Logger, u *updater.Updater, st store.Store, serverCfg *config.ServerConfig) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:      router,
		log:         log,
		updater:     u,
		store:       st,
		config:      serverCfg,
		ghSemaphore: semaphore.NewWeighted(1),
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.Use(middleware.Timeout(time.Minute))

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	router.Get("/", server.indexHandler)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(server.authMiddleware)
		r.Route("/hooks", func(r chi.Router) {
			r.Post("/update-plugins", server.updatePlugins)
			r.Post("/plugins-api", server.pluginsAPI)
			r.Post("/post-install", server.postInstall)
			r.Post("/process-complete", server.processComplete)
		})
		r.Put("/options/github-token", server.setGitHubToken)
	})

	return server
}
