//go:build windows

package server

import "context"

func (s *Server) configureSignals() {}

func (s *Server) listenSignals(ctx context.Context) {
	<-ctx.Done()
}
