//go:build !windows

package server

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func (s *Server) configureSignals() {
	signal.Notify(s.signals, syscall.SIGUSR1)
}

// listenSignals reopens the log sink on every SIGUSR1 until ctx is done.
func (s *Server) listenSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.signals:
			if sig != syscall.SIGUSR1 {
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("Reopening attackq log file")
			s.reopenLogs()
		}
	}
}
