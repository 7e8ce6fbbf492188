package api

import (
	"context"
	"errors"
	"fmt"
	"licensebot/internal/config"
	apierrors "licensebot/internal/http-server/handlers/errors"
	"licensebot/internal/http-server/handlers/grants"
	"licensebot/internal/http-server/handlers/licenses"
	"licensebot/internal/http-server/middleware/authenticate"
	"licensebot/internal/http-server/middleware/timeout"
	"licensebot/lib/api/response"
	"licensebot/lib/sl"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	licenses.Core
	grants.Core
}

// NewRouter builds the admin API routes:
//
//	GET    /v1/groups/{group}/licenses
//	POST   /v1/groups/{group}/licenses
//	DELETE /v1/groups/{group}/licenses/{code}
//	GET    /v1/groups/{group}/members/{member}/grants
//	DELETE /v1/groups/{group}/members/{member}/grants/{role}
func NewRouter(conf *config.Config, log *slog.Logger, handler Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(30 * time.Second))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(httprate.Limit(
		conf.Api.RateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, response.Error("Too many requests"))
		}),
	))
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(apierrors.NotFound(log))
	router.MethodNotAllowed(apierrors.NotAllowed(log))

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/groups/{group}", func(group chi.Router) {
			group.Get("/licenses", licenses.List(log, handler))
			group.Post("/licenses", licenses.Generate(log, handler))
			group.Delete("/licenses/{code}", licenses.Delete(log, handler))
			group.Get("/members/{member}/grants", grants.List(log, handler))
			group.Delete("/members/{member}/grants/{role}", grants.Revoke(log, handler))
		})
	})

	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler) *Server {
	server := &Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      NewRouter(conf, log, handler),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIp, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	s.log.Info("starting api server", slog.String("address", serverAddress))

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("stopping api server")
	return s.httpServer.Shutdown(ctx)
}
