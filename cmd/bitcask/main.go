package main

import (
	"context"
	"os"

	"github.com/phuslu/log"

	"github.com/omriShneor/rustdex/core"
	"github.com/omriShneor/rustdex/internal/server"
	"github.com/omriShneor/rustdex/internal/utils"
)

func main() {
	flags := utils.HandleCLIInputs()

	logger := &log.Logger{
		Level:  log.ParseLevel(flags.LogLevel),
		Writer: &log.ConsoleWriter{ColorOutput: true},
	}

	cfg := core.DefaultConfig()
	if flags.Config != "" {
		loaded, err := core.LoadConfig(flags.Config)
		if err != nil {
			logger.Error().Err(err).Str("path", flags.Config).Msg("error while loading config")
			os.Exit(1)
		}
		cfg = loaded
	}
	if flags.DataFileSizeSet {
		cfg.MaxSegmentSize = int64(flags.DataFileSizeMB) * core.OneMegabyte
	}
	cfg.Logger = logger

	bk, err := core.Open(flags.Directory, cfg)
	if err != nil {
		logger.Error().Err(err).Str("dir", flags.Directory).Msg("error while starting")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := utils.ListenForProcessInterruptOrKill(logger)
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	handler := server.NewHandler(bk, logger)
	if err := server.Start(ctx, flags.Port, handler.ServeConn, logger); err != nil {
		logger.Error().Err(err).Int("port", flags.Port).Msg("server stopped")
	}
	cancel()

	if err := bk.Close(); err != nil {
		logger.Error().Err(err).Msg("error while closing")
		os.Exit(1)
	}
}
