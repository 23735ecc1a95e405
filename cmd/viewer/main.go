package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/remoterg/internal/adapters/rtc"
	wsignal "github.com/dkeye/remoterg/internal/adapters/signal"
	"github.com/dkeye/remoterg/internal/app/console"
	"github.com/dkeye/remoterg/internal/app/orch"
	"github.com/dkeye/remoterg/internal/config"
	"github.com/dkeye/remoterg/internal/control"
	"github.com/dkeye/remoterg/internal/domain"
	"github.com/dkeye/remoterg/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.LoadViewer(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	rtcConfig := rtc.DefaultWebRTCConfig()
	if len(cfg.ICEServers) > 0 {
		rtcConfig.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	dialer := wsignal.Dialer{
		URL:       cfg.RelayURL,
		SessionID: domain.SessionID(cfg.SessionID),
		Role:      domain.RoleViewer,
		Logger:    log.Logger,
	}
	factory := rtc.Factory{Config: rtcConfig, Logger: log.Logger}

	o := orch.New(ctx, orch.Config{
		Codec:             cfg.Codec,
		ControlLabel:      cfg.ControlLabel,
		KeepaliveInterval: cfg.KeepaliveInterval,
		HealthInterval:    cfg.HealthInterval,
		ControlRetryDelay: cfg.ControlRetryDelay,
		Sinks:             recordingSinks(cfg),
	}, dialer, factory, callbacks(cfg), log.Logger)
	defer o.Close()

	if cfg.AutoConnect {
		o.Connect()
	}

	log.Info().Str("module", "main").Str("session_id", cfg.SessionID).Msg("viewer ready, type commands")
	if err := console.Run(ctx, os.Stdin, os.Stdout, o, log.Logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("console")
	}
	log.Info().Msg("viewer exiting")
}

func callbacks(cfg *config.Viewer) orch.Callbacks {
	logger := log.With().Str("module", "viewer").Logger()
	return orch.Callbacks{
		OnState: func(st orch.State) {
			ev := logger.Info()
			if st.Err != nil {
				ev = logger.Warn().Err(st.Err)
			}
			ev.Msg(console.FormatState(st))
		},
		OnTrack: func(t media.Track, stream *media.Stream) {
			logger.Info().Str("track", t.ID()).Str("kind", string(t.Kind())).Str("mime", t.MimeType()).
				Int("tracks", stream.Len()).Msg("track added")
		},
		OnHealth: func(s orch.Stats) {
			logger.Debug().Interface("stats", s).Msg("health")
		},
		OnScreenshot: func(shot control.Screenshot) {
			path, err := saveScreenshot(cfg.ScreenshotDir, shot)
			if err != nil {
				logger.Error().Err(err).Str("id", shot.ID).Msg("save screenshot")
				return
			}
			logger.Info().Str("path", path).Int("bytes", len(shot.Data)).Msg("screenshot saved")
		},
		OnAnalysis: func(id, text string) {
			fmt.Printf("analysis %s:\n%s\n", id, text)
		},
		OnAnalysisDelta: func(id, delta string) {
			logger.Debug().Str("id", id).Int("bytes", len(delta)).Msg("analysis chunk")
		},
		OnLlmConfig: func(c control.LlmConfig) {
			fmt.Printf("llm config: port=%d model=%s mmproj=%s\n", c.Port, c.ModelPath, c.MmprojPath)
		},
		OnPong: func(rtt time.Duration) {
			logger.Debug().Dur("rtt", rtt).Msg("pong")
		},
	}
}

func saveScreenshot(dir string, shot control.Screenshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ext := shot.Format
	if ext == "" {
		ext = "bin"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s", filepath.Base(shot.ID), ext))
	return path, os.WriteFile(path, shot.Data, 0o644)
}

func recordingSinks(cfg *config.Viewer) func(media.Track) []*media.Output {
	if cfg.RecordDir == "" || (!cfg.RecordVideo && !cfg.RecordAudio) {
		return nil
	}
	logger := log.With().Str("module", "recorder").Logger()
	return func(t media.Track) []*media.Output {
		switch t.Kind() {
		case media.KindVideo:
			if !cfg.RecordVideo {
				return nil
			}
		case media.KindAudio:
			if !cfg.RecordAudio {
				return nil
			}
		}
		if err := os.MkdirAll(cfg.RecordDir, 0o755); err != nil {
			logger.Error().Err(err).Msg("create record dir")
			return nil
		}
		sink, err := media.NewRecordingSink(cfg.RecordDir, t)
		if err != nil {
			logger.Warn().Err(err).Str("track", t.ID()).Msg("track not recorded")
			return nil
		}
		logger.Info().Str("path", media.RecordingPath(cfg.RecordDir, t)).Msg("recording track")
		return []*media.Output{media.NewOutput("record", sink)}
	}
}
