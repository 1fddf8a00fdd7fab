// Package workspace prepares the attackq data directory and guards it with a
// file lock so only one scheduler instance owns it at a time.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gofrs/flock"
)

// EnvRoot overrides the platform default workspace location.
const EnvRoot = "ATTACKQ_WORKSPACE"

const (
	spoolDir = "spool"
	dbDir    = "db"
	logsDir  = "logs"
	lockFile = "attackq.lock"
	dbFile   = "attackq.db"
	logFile  = "attackq.log"
)

var defaultSubdirs = []string{
	spoolDir,
	dbDir,
	logsDir,
}

// ErrLocked is returned by Open when another process holds the workspace.
var ErrLocked = errors.New("workspace is locked by another attackq instance")

var (
	userHomeDir = os.UserHomeDir
	getGOOS     = func() string { return runtime.GOOS }
)

// Workspace is a prepared, locked data directory.
type Workspace struct {
	Root string
	lock *flock.Flock
}

// Prepare ensures the workspace root and required subdirectories exist.
// It returns the absolute path to the workspace root that was prepared.
func Prepare(root string) (string, error) {
	if root == "" {
		var err error
		root, err = DefaultRoot()
		if err != nil {
			return "", err
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return "", fmt.Errorf("create workspace root: %w", err)
	}

	for _, sub := range defaultSubdirs {
		subPath := filepath.Join(absRoot, sub)
		if err := os.MkdirAll(subPath, 0o750); err != nil {
			return "", fmt.Errorf("create workspace subdir %q: %w", sub, err)
		}
	}

	return absRoot, nil
}

// Open prepares root and takes its instance lock without blocking.
func Open(root string) (*Workspace, error) {
	prepared, err := Prepare(root)
	if err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(prepared, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, prepared)
	}
	return &Workspace{Root: prepared, lock: lock}, nil
}

// SpoolDir is watched for job files.
func (w *Workspace) SpoolDir() string { return filepath.Join(w.Root, spoolDir) }

// DBPath is the default sqlite database file.
func (w *Workspace) DBPath() string { return filepath.Join(w.Root, dbDir, dbFile) }

// LogPath is the default log file.
func (w *Workspace) LogPath() string { return filepath.Join(w.Root, logsDir, logFile) }

// Close releases the instance lock.
func (w *Workspace) Close() error {
	if w == nil || w.lock == nil {
		return nil
	}
	return w.lock.Unlock()
}

type ctxKey string

const workspaceRootKey ctxKey = "workspace.root"

// WithContext stores the prepared workspace root on the provided context.
func WithContext(ctx context.Context, root string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workspaceRootKey, root)
}

// FromContext extracts the workspace root from context.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	val := ctx.Value(workspaceRootKey)
	if root, ok := val.(string); ok && root != "" {
		return root, true
	}
	return "", false
}

// DefaultRoot returns the platform data directory for attackq, honouring
// ATTACKQ_WORKSPACE.
func DefaultRoot() (string, error) {
	if dir := os.Getenv(EnvRoot); dir != "" {
		return dir, nil
	}

	switch getGOOS() {
	case "darwin":
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "attackq"), nil
	case "windows":
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "attackq"), nil
		}
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "AppData", "Roaming", "attackq"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "attackq"), nil
		}
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if home == "" {
			return "", errors.New("cannot determine workspace directory")
		}
		return filepath.Join(home, ".local", "share", "attackq"), nil
	}
}

// Subdirectories returns the list of default workspace subdirectories.
func Subdirectories() []string {
	subs := make([]string, len(defaultSubdirs))
	copy(subs, defaultSubdirs)
	return subs
}
