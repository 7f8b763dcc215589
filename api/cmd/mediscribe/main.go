// Command mediscribe runs the prescription service: the REST API
// (serve), a one-shot CLI run (process) and schema migration (migrate).
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mediscribe/api/internal/agents/elevenlabs"
	"mediscribe/api/internal/agents/gcloudtts"
	"mediscribe/api/internal/agents/gemini"
	"mediscribe/api/internal/config"
	"mediscribe/api/internal/httpserver"
	"mediscribe/api/internal/pharmacist"
	"mediscribe/api/internal/pipeline"
	"mediscribe/api/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:           "mediscribe",
		Short:         "Prescription photo to spoken Urdu instructions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), processCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newOrchestrator wires the pipeline from config: Gemini for both the
// vision and translation roles, the configured engine for speech.
func newOrchestrator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline.Orchestrator, func(), error) {
	vision, err := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, err
	}

	var speech pipeline.Speech
	cleanup := func() {}
	switch cfg.TTSEngine {
	case config.TTSEngineGoogle:
		eng, err := gcloudtts.New(ctx, cfg.GoogleTTSLang, cfg.GoogleTTSVoice)
		if err != nil {
			return nil, nil, err
		}
		speech = eng
		cleanup = func() { _ = eng.Close() }
	default:
		eng, err := elevenlabs.New(cfg.ElevenLabsAPIKey)
		if err != nil {
			return nil, nil, err
		}
		speech = eng
	}

	defaultVoice := pipeline.VoiceSpec{
		VoiceID:  cfg.ElevenLabsVoice,
		ModelID:  cfg.ElevenLabsModel,
		Settings: pipeline.DefaultVoiceSettings(),
	}
	o := pipeline.NewOrchestrator(vision, vision, speech,
		pharmacist.New(nil), defaultVoice, log)
	return o, cleanup, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func ensureDirs(cfg *config.Config) error {
	for _, d := range []string{cfg.UploadDir, cfg.AudioDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := ensureDirs(cfg); err != nil {
				return err
			}
			log := newLogger(cfg)
			ctx := cmd.Context()

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := store.NewPrescriptionRepo(db)
			if err := repo.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			orch, cleanup, err := newOrchestrator(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())
			e.Use(middleware.CORS())
			h := httpserver.NewHandler(orch, repo, cfg.UploadDir, cfg.AudioDir,
				cfg.MaxUploadBytes(), cfg.PipelineTimeout(), log)
			h.RegisterRoutes(e)

			go func() {
				log.Info().Str("port", cfg.Port).Msg("api listening")
				if err := e.Start(":" + cfg.Port); err != nil {
					log.Info().Err(err).Msg("server stopped")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			<-quit

			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutCtx)
		},
	}
}

func processCmd() *cobra.Command {
	var (
		patientName string
		audioOut    string
		noAudio     bool
	)
	cmd := &cobra.Command{
		Use:   "process <image>",
		Short: "Run one prescription image through the pipeline and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := newLogger(cfg)

			orch, cleanup, err := newOrchestrator(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			if !noAudio && audioOut == "" {
				audioOut = strings.TrimSuffix(args[0], "."+ext(args[0])) + ".mp3"
			}

			// No deadline here: a CLI run waits as long as the models take.
			res, err := orch.Process(cmd.Context(), pipeline.Request{
				ImagePath:       args[0],
				PatientName:     patientName,
				SynthesizeAudio: !noAudio,
				AudioOutputPath: audioOut,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&patientName, "patient", "", "patient name for the greeting")
	cmd.Flags().StringVar(&audioOut, "audio-out", "", "where to write the mp3 (default: next to the image)")
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "skip speech synthesis")
	return cmd
}

func ext(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return ""
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.NewPrescriptionRepo(db).Migrate(cmd.Context())
		},
	}
}
