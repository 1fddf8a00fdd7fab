package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/procexec"
)

func validated(t *testing.T, spec job.Spec) (job.Job, job.Params) {
	t.Helper()
	spec, params, err := job.Validate(spec)
	require.NoError(t, err)
	return *job.New("j1", spec, time.Now()), params
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		spec job.Spec
		want []string
	}{
		{
			name: "bruteforce",
			spec: job.Spec{Target: "192.0.2.5", Type: job.TypeBruteforce, Parameters: map[string]any{
				"service": "ssh", "user_list": "users.txt", "pass_list": "pass.txt", "port": 2222, "tasks": 4, "stop_on_first": true,
			}},
			want: []string{"-I", "-L", "users.txt", "-P", "pass.txt", "-s", "2222", "-t", "4", "-f", "192.0.2.5", "ssh"},
		},
		{
			name: "spray",
			spec: job.Spec{Target: "db.example.com", Type: job.TypeSpray, Parameters: map[string]any{
				"service": "mysql", "user_list": "users.txt", "password": "Winter2025!",
			}},
			want: []string{"-I", "-L", "users.txt", "-p", "Winter2025!", "db.example.com", "mysql"},
		},
		{
			name: "combo",
			spec: job.Spec{Target: "192.0.2.7", Type: job.TypeCombo, Parameters: map[string]any{
				"service": "ftp", "combo_list": "defaults.txt",
			}},
			want: []string{"-I", "-C", "defaults.txt", "192.0.2.7", "ftp"},
		},
		{
			name: "http form over tls",
			spec: job.Spec{Target: "portal.example.com", Type: job.TypeHTTPForm, Parameters: map[string]any{
				"user_list": "u.txt", "pass_list": "p.txt", "path": "/login",
				"form": "user=^USER^&pass=^PASS^", "failure": "Invalid", "tls": true, "port": 8443,
			}},
			want: []string{"-I", "-L", "u.txt", "-P", "p.txt", "-s", "8443", "portal.example.com", "https-post-form", "/login:user=^USER^&pass=^PASS^:F=Invalid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, params := validated(t, tt.spec)
			cmd, err := Builder{}.Build(j, params)
			require.NoError(t, err)
			require.Equal(t, DefaultPath, cmd.Path)
			require.Equal(t, tt.want, cmd.Args)
			require.Equal(t, job.DefaultTimeout, cmd.Timeout)
			require.Nil(t, cmd.Env)
		})
	}
}

func TestBuild_ExtraArgsAndEnv(t *testing.T) {
	j, params := validated(t, job.Spec{Target: "192.0.2.7", Type: job.TypeCombo, Parameters: map[string]any{
		"service": "ftp", "combo_list": "defaults.txt",
	}})

	b := Builder{Path: "/opt/hydra/bin/hydra", ExtraArgs: []string{"-W", "3"}, Env: []string{"HYDRA_PROXY=socks5://127.0.0.1:9050"}, Dir: "/data"}
	cmd, err := b.Build(j, params)
	require.NoError(t, err)
	require.Equal(t, "/opt/hydra/bin/hydra", cmd.Path)
	require.Equal(t, []string{"-I", "-C", "defaults.txt", "-W", "3", "192.0.2.7", "ftp"}, cmd.Args)
	require.Contains(t, cmd.Env, "HYDRA_PROXY=socks5://127.0.0.1:9050")
	require.Equal(t, "/data", cmd.Dir)
}

func TestBuild_MismatchedParams(t *testing.T) {
	j, _ := validated(t, job.Spec{Target: "192.0.2.7", Type: job.TypeCombo, Parameters: map[string]any{
		"service": "ftp", "combo_list": "defaults.txt",
	}})
	_, err := Builder{}.Build(j, job.SprayParams{Service: "ssh", UserList: "u", Password: "p"})
	require.Error(t, err)

	_, err = Builder{}.Build(j, nil)
	require.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("Hydra v9.5 (c) 2023 by van Hauser/THC & David Maciejak")
	require.NoError(t, err)
	require.Equal(t, "9.5.0", v.String())

	_, err = ParseVersion("usage: something else")
	require.ErrorIs(t, err, ErrUnknownVersion)
}

func TestCheckVersion(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	fake := filepath.Join(dir, "hydra")
	require.NoError(t, os.WriteFile(fake, []byte("#!/bin/sh\necho 'Hydra v9.4 (c) 2022 by van Hauser/THC'\nexit 255\n"), 0o755))

	r := procexec.NewRunner()
	info, err := Builder{Path: fake}.CheckVersion(context.Background(), r, "")
	require.NoError(t, err)
	require.Equal(t, fake, info.Path)
	require.Equal(t, "9.4.0", info.Version.String())

	_, err = Builder{Path: fake}.CheckVersion(context.Background(), r, ">= 9.5")
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Builder{Path: filepath.Join(dir, "missing")}.CheckVersion(context.Background(), r, "")
	require.ErrorIs(t, err, ErrNotFound)
}
