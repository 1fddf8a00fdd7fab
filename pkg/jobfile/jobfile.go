// Package jobfile reads batches of job specs from YAML or JSON files.
//
// A file is either a bare list of jobs or a document with a "jobs" list and
// optional "defaults" merged into every entry:
//
//	defaults:
//	  max_attempts: 2
//	  parameters:
//	    user_list: /lists/users.txt
//	jobs:
//	  - target: 192.0.2.5
//	    type: bruteforce
//	    parameters: {service: ssh, pass_list: /lists/rockyou.txt}
package jobfile

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/attackq/pkg/job"
)

// ErrEmpty is returned for files that parse but hold no jobs.
var ErrEmpty = errors.New("job file contains no jobs")

// Extensions lists the file suffixes Load accepts.
var Extensions = []string{".yaml", ".yml", ".json"}

// Entry is one job as written in a file. Timeout accepts Go durations
// ("90m") or a number of seconds.
type Entry struct {
	Target      string         `yaml:"target"`
	Type        job.Type       `yaml:"type"`
	Parameters  map[string]any `yaml:"parameters"`
	Priority    *bool          `yaml:"priority"`
	MaxAttempts int            `yaml:"max_attempts"`
	Timeout     any            `yaml:"timeout"`
}

type document struct {
	Defaults Entry   `yaml:"defaults"`
	Jobs     []Entry `yaml:"jobs"`
}

// EntryError locates a malformed entry.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("job %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Supported reports whether path has a job file extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads and parses a job file.
func Load(path string) ([]job.Spec, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("unsupported file format: %s (use .yaml, .yml, or .json)", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	specs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// Parse decodes YAML or JSON bytes into specs. Specs are not validated; the
// scheduler does that on Submit.
func Parse(data []byte) ([]job.Spec, error) {
	var doc document

	var list []Entry
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		doc.Jobs = list
	} else if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}

	if len(doc.Jobs) == 0 {
		return nil, ErrEmpty
	}

	specs := make([]job.Spec, 0, len(doc.Jobs))
	for i, e := range doc.Jobs {
		spec, err := merge(doc.Defaults, e).spec()
		if err != nil {
			return nil, &EntryError{Index: i, Err: err}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// merge overlays e on defaults; parameters merge key by key.
func merge(defaults, e Entry) Entry {
	out := defaults
	if e.Target != "" {
		out.Target = e.Target
	}
	if e.Type != "" {
		out.Type = e.Type
	}
	if e.Priority != nil {
		out.Priority = e.Priority
	}
	if e.MaxAttempts != 0 {
		out.MaxAttempts = e.MaxAttempts
	}
	if e.Timeout != nil {
		out.Timeout = e.Timeout
	}

	params := make(map[string]any, len(defaults.Parameters)+len(e.Parameters))
	maps.Copy(params, defaults.Parameters)
	maps.Copy(params, e.Parameters)
	out.Parameters = params
	return out
}

func (e Entry) spec() (job.Spec, error) {
	timeout, err := parseTimeout(e.Timeout)
	if err != nil {
		return job.Spec{}, err
	}
	spec := job.Spec{
		Target:      e.Target,
		Type:        e.Type,
		Parameters:  e.Parameters,
		MaxAttempts: e.MaxAttempts,
		Timeout:     timeout,
	}
	if e.Priority != nil {
		spec.Priority = *e.Priority
	}
	if len(spec.Parameters) == 0 {
		spec.Parameters = nil
	}
	return spec, nil
}

func parseTimeout(v any) (time.Duration, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("timeout: %w", err)
		}
		return d, nil
	default:
		secs, err := cast.ToFloat64E(t)
		if err != nil {
			return 0, fmt.Errorf("timeout: %w", err)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
