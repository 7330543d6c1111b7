package utils

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"
)

// ListenForProcessInterruptOrKill blocks until it receives an interrupt (Ctrl+C)
// or termination signal (SIGTERM) and returns the signal.
func ListenForProcessInterruptOrKill(logger *log.Logger) os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info().Msg("press Ctrl+C to exit")

	return <-sigChan
}
