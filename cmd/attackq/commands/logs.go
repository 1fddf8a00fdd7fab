package commands

import (
	"context"
	"io"
	"sync"

	"github.com/vulntor/attackq/pkg/logging"
)

// logSink owns the global log destination so long-running commands can
// re-open the file after rotation.
type logSink struct {
	mu     sync.Mutex
	opts   logging.Options
	closer io.Closer
}

func (l *logSink) open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	closer, err := logging.Configure(l.opts)
	if err != nil {
		return err
	}
	l.closer = closer
	return nil
}

// Reopen closes the current log file and opens it again. It is a no-op when
// logging goes to stderr.
func (l *logSink) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.opts.File == "" {
		return nil
	}
	closer, err := logging.Configure(l.opts)
	if err != nil {
		return err
	}
	old := l.closer
	l.closer = closer
	if old != nil {
		return old.Close()
	}
	return nil
}

func (l *logSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

type logSinkKey struct{}

func withLogSink(ctx context.Context, s *logSink) context.Context {
	return context.WithValue(ctx, logSinkKey{}, s)
}

func logSinkFrom(ctx context.Context) *logSink {
	s, _ := ctx.Value(logSinkKey{}).(*logSink)
	return s
}
