package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ironsheep/visionguard/internal/annotate"
	"github.com/ironsheep/visionguard/internal/config"
	"github.com/ironsheep/visionguard/internal/detection"
	"github.com/ironsheep/visionguard/internal/detection/dnn"
	"github.com/ironsheep/visionguard/internal/normalize"
	"github.com/ironsheep/visionguard/internal/ocr"
	"github.com/ironsheep/visionguard/internal/pipeline"
	"github.com/ironsheep/visionguard/internal/store"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	logFile  io.Closer
	store    *store.Store
	cleaner  *normalize.Normalizer
	proposer detection.Proposer
	detector io.Closer
	annotate annotate.Options
}

func newLogger(cfg config.App) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	var closer io.Closer
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, "alpr.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("app", "visionguard").Logger()
	return log, closer, nil
}

// openApp loads configuration and builds the store, normalizer, and proposer.
// Commands that only read the store pass withPipeline=false to skip the rest.
func openApp(ctx context.Context, configPath string, withPipeline bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, logFile, err := newLogger(cfg.App)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, logFile: logFile}

	a.store, err = store.Open(store.Options{
		Driver: cfg.App.DBDriver,
		Path:   cfg.App.DBPath,
		DSN:    cfg.App.DBDSN,
		Logger: log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if !withPipeline {
		return a, nil
	}

	a.cleaner = normalize.FromConfig(ctx, cfg.Gemini, log)

	a.annotate = annotate.Options{Thickness: cfg.Annotate.Thickness}
	if a.annotate.Color, err = annotate.ParseColor(cfg.Annotate.Color); err != nil {
		log.Warn().Err(err).Str("color", cfg.Annotate.Color).Msg("using default annotation color")
		a.annotate.Color = annotate.DefaultOptions().Color
	}

	switch cfg.Detector.Strategy {
	case config.StrategyDNN:
		proposer, det, err := dnn.NewProposer(cfg.Detector)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.proposer, a.detector = proposer, det
	default:
		a.proposer = detection.NewContourProposer(cfg.Processing)
	}
	log.Debug().Str("strategy", cfg.Detector.Strategy).Bool("remote_cleanup", a.cleaner.RemoteEnabled()).Msg("pipeline configured")

	return a, nil
}

// newPipeline builds a pipeline with its own OCR engine. The engine is closed
// with the pipeline.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	engine, err := ocr.NewTesseract(ocr.TesseractOptions{
		Language:       a.cfg.App.OCRLanguage,
		TessdataPrefix: a.cfg.App.TessdataPrefix,
	})
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(pipeline.Options{
		Proposer:   a.proposer,
		Recognizer: ocr.NewRecognizer(engine, a.cfg.Processing, a.log),
		Cleaner:    a.cleaner,
		Recorder:   a.store,
		OCRTimeout: a.cfg.App.OCRTimeout,
		Closer:     engine,
		Logger:     a.log,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	return p, nil
}

func (a *app) Close() {
	if a.detector != nil {
		a.detector.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
