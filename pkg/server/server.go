// pkg/server/server.go
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/rs/zerolog/log"
)

// Server owns process-level signal handling for long-running commands.
// SIGUSR1 asks it to close and re-open log files after rotation.
type Server struct {
	signals chan os.Signal
	reopen  func() error

	wg   sync.WaitGroup
	once sync.Once
}

// NewServer creates a Server. reopen may be nil when logs go to stderr.
func NewServer(reopen func() error) *Server {
	srv := &Server{
		signals: make(chan os.Signal, 1),
		reopen:  reopen,
	}

	srv.configureSignals()

	return srv
}

// Start listens for signals until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.listenSignals(ctx)
	}()
}

// Close stops signal delivery and waits for the listener to return. The
// context passed to Start must be done first.
func (s *Server) Close() {
	s.once.Do(func() {
		signal.Stop(s.signals)
		s.wg.Wait()
	})
}

func (s *Server) reopenLogs() {
	if s.reopen == nil {
		return
	}
	if err := s.reopen(); err != nil {
		log.Error().Err(err).Msg("Failed to re-open log files")
		return
	}
	log.Info().Msg("Log files re-opened")
}
