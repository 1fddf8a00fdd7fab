package commands

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/extract"
	"github.com/vulntor/attackq/pkg/workspace"
)

const toolOutput = `Hydra v9.5 (c) 2023 by van Hauser/THC & David Maciejak
[DATA] attacking ssh://192.0.2.5:22/
[22][ssh] host: 192.0.2.5   login: root   password: toor
[22][ssh] host: 192.0.2.5   login: root   password: toor
[STATUS] 64.00 tries/min, 64 tries in 00:01h, 36 to do in 00:01h, 16 active
login: admin password: admin
1 of 1 target successfully completed, 2 valid passwords found
`

func TestExtractCommand_Stdin(t *testing.T) {
	t.Setenv(workspace.EnvRoot, t.TempDir())

	stdout, _, err := execute(t, toolOutput, "extract", "--host", "192.0.2.9", "--service", "ftp", "-o", "json")
	require.NoError(t, err)

	var recs []extract.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, extract.Record{Host: "192.0.2.5", Service: "ssh", Port: 22, Username: "root", Password: "toor"}, recs[0])
	assert.Equal(t, "192.0.2.9", recs[1].Host)
	assert.Equal(t, "ftp", recs[1].Service)
}

func TestExtractCommand_Table(t *testing.T) {
	t.Setenv(workspace.EnvRoot, t.TempDir())

	stdout, _, err := execute(t, toolOutput, "extract", "-", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "HOST")
	assert.NotContains(t, stdout, "JOB")
	assert.Contains(t, stdout, "2 credentials")

	stdout, _, err = execute(t, "nothing here\n", "extract")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No credentials found")
}

func TestExtractCommand_MissingFile(t *testing.T) {
	t.Setenv(workspace.EnvRoot, t.TempDir())

	_, _, err := execute(t, "", "extract", "/does/not/exist.log")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExtractCredentials_LongLine(t *testing.T) {
	line := strings.Repeat("x", 200*1024) + "\n" + "[21][ftp] host: 10.0.0.1   login: a   password: b\n"
	recs, err := extractCredentials(strings.NewReader(line), func(*extract.Record) {})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 21, recs[0].Port)
}
