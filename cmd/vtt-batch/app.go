package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vtt-batch/internal/batch"
	"github.com/snarg/vtt-batch/internal/config"
	"github.com/snarg/vtt-batch/internal/scan"
	"github.com/snarg/vtt-batch/internal/storage"
	"github.com/snarg/vtt-batch/internal/transcribe"
	"github.com/snarg/vtt-batch/internal/validate"
)

// app holds the dependencies built once at process start.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	bucket    storage.Bucket
	provider  transcribe.Provider
	runner    *batch.Runner
	startTime time.Time
}

func newApp(flags *rootFlags, httpAddr string, logOut io.Writer) (*app, error) {
	startTime := time.Now()

	cfg, err := config.Load(config.Overrides{
		EnvFile:    flags.envFile,
		HTTPAddr:   httpAddr,
		LogLevel:   flags.logLevel,
		ScratchDir: flags.scratchDir,
	})
	if err != nil {
		return nil, err
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(logOut).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("vtt-batch starting")

	// Storage
	bucket, err := storage.New(cfg, log.With().Str("component", "storage").Logger())
	if err != nil {
		return nil, err
	}

	// Transcription
	provider := newProvider(cfg)
	log.Info().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Dur("timeout", cfg.TranscribeTimeout).
		Msg("transcription provider configured")

	validator := validate.New(validate.Options{
		MaxSize:    cfg.MaxFileSize,
		Extensions: cfg.AllowedExtensions,
		MIMETypes:  cfg.AllowedMIMETypes,
	})
	scanner := scan.New(bucket, validator, cfg.Window(), log.With().Str("component", "scan").Logger())
	worker := transcribe.NewWorker(provider, log.With().Str("component", "transcribe").Logger())
	runner := batch.NewRunner(scanner, worker, bucket, batch.Options{
		ScratchDir: cfg.ScratchDir,
		Location:   cfg.Location(),
		Workers:    cfg.BatchWorkers,
	}, log.With().Str("component", "batch").Logger())

	return &app{
		cfg:       cfg,
		log:       log,
		bucket:    bucket,
		provider:  provider,
		runner:    runner,
		startTime: startTime,
	}, nil
}

func newProvider(cfg *config.Config) transcribe.Provider {
	if cfg.TranscribeProvider == "whisper" {
		return transcribe.NewWhisperClient(cfg.WhisperURL, cfg.OpenAIAPIKey, cfg.TranscribeModel, cfg.TranscribeLanguage, cfg.TranscribeTimeout)
	}
	return transcribe.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscribeModel, cfg.TranscribeLanguage, cfg.TranscribeTimeout)
}
