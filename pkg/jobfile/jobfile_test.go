package jobfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/job"
)

func TestParse_DocumentWithDefaults(t *testing.T) {
	data := []byte(`
defaults:
  max_attempts: 2
  timeout: 30m
  parameters:
    user_list: /lists/users.txt
    tasks: 4
jobs:
  - target: 192.0.2.5
    type: bruteforce
    priority: true
    parameters:
      service: ssh
      pass_list: /lists/pass.txt
  - target: mail.example.com
    type: spray
    timeout: 90
    parameters:
      service: imap
      password: Winter2025!
      tasks: 1
`)

	specs, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	first := specs[0]
	assert.Equal(t, "192.0.2.5", first.Target)
	assert.Equal(t, job.TypeBruteforce, first.Type)
	assert.True(t, first.Priority)
	assert.Equal(t, 2, first.MaxAttempts)
	assert.Equal(t, 30*time.Minute, first.Timeout)
	assert.Equal(t, "/lists/users.txt", first.Parameters["user_list"])
	assert.Equal(t, "ssh", first.Parameters["service"])

	second := specs[1]
	assert.False(t, second.Priority)
	assert.Equal(t, 90*time.Second, second.Timeout)
	assert.Equal(t, 1, second.Parameters["tasks"], "entry parameters override defaults")
	assert.Equal(t, "/lists/users.txt", second.Parameters["user_list"])

	_, _, err = job.Validate(first)
	require.NoError(t, err)
	_, _, err = job.Validate(second)
	require.NoError(t, err)
}

func TestParse_BareList(t *testing.T) {
	specs, err := Parse([]byte(`
- target: 10.0.0.1
  type: combo
  parameters: {service: ftp, combo_list: /lists/combo.txt}
`))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, job.TypeCombo, specs[0].Type)
}

func TestParse_JSON(t *testing.T) {
	specs, err := Parse([]byte(`{"jobs":[{"target":"192.0.2.7","type":"bruteforce","timeout":"5m",
		"parameters":{"service":"ssh","user_list":"u.txt","pass_list":"p.txt","port":2222}}]}`))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, 5*time.Minute, specs[0].Timeout)
	assert.Equal(t, 2222, specs[0].Parameters["port"])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		is   error
	}{
		{"empty document", "jobs: []", ErrEmpty},
		{"no jobs key", "defaults: {max_attempts: 1}", ErrEmpty},
		{"garbage", "jobs: [[[", nil},
		{"bad timeout", "jobs: [{target: a.example, type: spray, timeout: soon}]", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestParse_EntryErrorIndex(t *testing.T) {
	_, err := Parse([]byte(`
jobs:
  - {target: a.example, type: spray}
  - {target: b.example, type: spray, timeout: later}
`))
	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, 1, entryErr.Index)
	assert.Contains(t, err.Error(), "job 1: timeout")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "jobs.yml")
	require.NoError(t, os.WriteFile(path, []byte("- {target: 192.0.2.9, type: spray}\n"), 0o600))
	specs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	_, err = Load(filepath.Join(dir, "jobs.txt"))
	require.ErrorContains(t, err, "unsupported file format")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a/jobs.YAML"))
	assert.True(t, Supported("jobs.json"))
	assert.False(t, Supported("jobs.yaml.tmp"))
	assert.False(t, Supported("README"))
}
