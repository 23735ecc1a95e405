package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/remoterg/internal/adapters/http"
	wsignal "github.com/dkeye/remoterg/internal/adapters/signal"
	"github.com/dkeye/remoterg/internal/config"
	"github.com/dkeye/remoterg/internal/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadRelay(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	relays := relay.NewManager(cfg.SessionTTL, log.Logger)
	limiter := wsignal.NewUpgradeLimiter(cfg.UpgradeLimit, cfg.UpgradeWindow)
	ctl := wsignal.NewController(relays, limiter, cfg.ReadLimit, cfg.PingPeriod)

	var wg conc.WaitGroup
	defer wg.Wait()
	wg.Go(func() { relays.Run(ctx, cfg.JanitorPeriod) })
	wg.Go(func() {
		ticker := time.NewTicker(cfg.UpgradeWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					log.Debug().Str("module", "main").Int("keys", n).Msg("pruned upgrade limiter")
				}
			}
		}
	})

	r := router.SetupRouter(ctx, cfg, relays, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
