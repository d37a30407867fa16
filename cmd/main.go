package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/handlers"
	"github.com/savvyfin/advisor/internal/config"
	"github.com/savvyfin/advisor/internal/logger"
	"github.com/savvyfin/advisor/internal/services"
	"github.com/savvyfin/advisor/internal/store"
)

func main() {
	logger.Init()

	st, err := store.Open(config.GetDatabaseConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	svcs, err := services.InitializeServices(st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	router := setupRouter(svcs)

	srv := &http.Server{
		Addr:              config.GetServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: streamed responses stay open for as long as
		// the upstream completion takes.
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Forced shutdown after timeout")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Server stopped")
}

func setupRouter(svcs *services.Services) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.HandleHealth(svcs.GetStore(), svcs.GetConnectionManager(), w, r)
	}).Methods("GET")

	handlers.RegisterV1Routes(router, svcs)

	return router
}
