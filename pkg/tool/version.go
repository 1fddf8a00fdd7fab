package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/vulntor/attackq/pkg/procexec"
)

// DefaultConstraint is the oldest tool release whose output format the
// extractor understands.
const DefaultConstraint = ">= 9.0"

var (
	// ErrNotFound indicates the tool binary could not be located.
	ErrNotFound = errors.New("attack tool not found")
	// ErrUnsupportedVersion indicates the tool is older than the constraint.
	ErrUnsupportedVersion = errors.New("unsupported attack tool version")
	// ErrUnknownVersion indicates no version banner was found in the output.
	ErrUnknownVersion = errors.New("could not determine attack tool version")

	banner = regexp.MustCompile(`(?i)hydra\s+v(\d+(?:\.\d+){0,2})`)
)

var environ = os.Environ

// Info describes an installed tool.
type Info struct {
	Path    string
	Version *semver.Version
}

// ParseVersion finds the version banner in tool output.
func ParseVersion(output string) (*semver.Version, error) {
	m := banner.FindStringSubmatch(output)
	if m == nil {
		return nil, ErrUnknownVersion
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownVersion, m[1], err)
	}
	return v, nil
}

// CheckVersion resolves the tool binary, reads its banner and checks it
// against constraint (DefaultConstraint when empty).
func (b Builder) CheckVersion(ctx context.Context, r *procexec.Runner, constraint string) (Info, error) {
	path, err := exec.LookPath(b.path())
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %w", ErrNotFound, b.path(), err)
	}
	if constraint == "" {
		constraint = DefaultConstraint
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return Info{Path: path}, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}

	// the banner is printed on the usage screen; the exit status is irrelevant
	res, err := r.Run(ctx, procexec.Command{
		Path:    path,
		Args:    []string{"-h"},
		Timeout: 10 * time.Second,
	}, nil)
	if err != nil {
		return Info{Path: path}, err
	}

	v, err := ParseVersion(res.Output)
	if err != nil {
		return Info{Path: path}, err
	}
	info := Info{Path: path, Version: v}
	if !c.Check(v) {
		return info, fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, v, constraint)
	}
	return info, nil
}
