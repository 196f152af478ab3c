package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"infoset_conversion/config"
	"infoset_conversion/internal/app"
	v1 "infoset_conversion/internal/controller/http/v1"
	"infoset_conversion/pkg/httpserver"
	"infoset_conversion/pkg/logger"

	ttrace "infoset_conversion/internal/telemetry/trace"
)

var name = "infoset-conversion-server"

// NewServer ...
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	srv := &Server{}

	closeFn, err := app.InitGlobalProvider(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	srv.traceProviderCloseFn = append(srv.traceProviderCloseFn, closeFn)

	return srv, nil
}

type Server struct {
	traceProviderCloseFn []ttrace.CloseFunc
}

// Run serves the manual trigger, health and metrics routes until a
// signal arrives.
func (s *Server) Run(ctx context.Context, cfg *config.Config) error {
	l := logger.New(cfg.Log.Level)
	l.Info("Starting server...")

	deps, err := app.Build(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("app - Run - app.Build: %w", err)
	}
	defer deps.Close()

	opts := []v1.RouterOption{v1.WithMetrics(deps.Registry)}
	if deps.Journal != nil {
		opts = append(opts, v1.WithHistory(deps.Journal))
	}

	handler := gin.New()
	v1.NewRouter(handler, l, deps.Usecase, opts...)
	httpServer := httpserver.New(s.cors().Handler(handler), httpserver.Port(cfg.HTTP.Port))

	l.Info("server serving on port %s", cfg.HTTP.Port)

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: " + s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	log.Printf("server stopped")

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown
	if serr := httpServer.Shutdown(); serr != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", serr))
	}

	for _, closeFn := range s.traceProviderCloseFn {
		if cerr := closeFn(ctxShutDown); cerr != nil {
			log.Error().Err(cerr).Msgf("Unable to close trace provider")
		}
	}

	log.Printf("server exited properly")
	return err
}

func (s *Server) cors() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		MaxAge:             60, // 1 minutes
		AllowCredentials:   false,
		OptionsPassthrough: false,
		Debug:              false,
	})
}
