package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Bracketed(t *testing.T) {
	rec := Extract("[22][ssh] host: 192.0.2.5   login: root   password: toor")
	require.NotNil(t, rec)
	assert.Equal(t, Record{
		Host:     "192.0.2.5",
		Service:  "ssh",
		Port:     22,
		Username: "root",
		Password: "toor",
	}, *rec)
}

func TestExtract_Forms(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *Record
	}{
		{
			name: "http form with spaces in password",
			line: "[443][https-post-form] host: portal.example.com   login: admin   password: correct horse battery\r",
			want: &Record{Host: "portal.example.com", Service: "https-post-form", Port: 443, Username: "admin", Password: "correct horse battery"},
		},
		{
			name: "password with surrounding spaces",
			line: "[22][ssh] host: 192.0.2.5   login: root   password:  pad ded  \r\n",
			want: &Record{Host: "192.0.2.5", Service: "ssh", Port: 22, Username: "root", Password: " pad ded  "},
		},
		{
			name: "loose password with trailing space",
			line: "login: operator password: hunter2 ",
			want: &Record{Username: "operator", Password: "hunter2 "},
		},
		{
			name: "empty password",
			line: "[21][ftp] host: 10.0.0.7   login: anonymous   password: ",
			want: &Record{Host: "10.0.0.7", Service: "ftp", Port: 21, Username: "anonymous", Password: ""},
		},
		{
			name: "service uppercased",
			line: "[3306][MySQL] host: db.local login: app password: s3cret",
			want: &Record{Host: "db.local", Service: "mysql", Port: 3306, Username: "app", Password: "s3cret"},
		},
		{
			name: "loose with host",
			line: "host: 192.0.2.9 login: guest password: guest",
			want: &Record{Host: "192.0.2.9", Username: "guest", Password: "guest"},
		},
		{
			name: "loose without host",
			line: "login: operator   password: hunter2",
			want: &Record{Username: "operator", Password: "hunter2"},
		},
		{
			name: "status line",
			line: "[STATUS] 64.00 tries/min, 64 tries in 00:01h, 936 to do in 00:15h, 4 active",
		},
		{
			name: "data line",
			line: "[DATA] attacking ssh://192.0.2.5:22/",
		},
		{
			name: "empty",
			line: "",
		},
		{
			name: "login without password token",
			line: "login: root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.line)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestDeduper_SameLineTwice(t *testing.T) {
	line := "[22][ssh] host: 192.0.2.5   login: root   password: toor"
	d := NewDeduper()
	var out []Record
	for _, l := range []string{line, "noise", line} {
		if rec := Extract(l); rec != nil && d.Add(*rec) {
			out = append(out, *rec)
		}
	}
	require.Len(t, out, 1)
	require.Equal(t, "root", out[0].Username)
	require.Equal(t, 1, d.Len())
}

func TestDeduper_KeyFields(t *testing.T) {
	d := NewDeduper()
	base := Record{Host: "192.0.2.5", Service: "ssh", Port: 22, Username: "root", Password: "toor"}

	require.True(t, d.Add(base))
	require.False(t, d.Add(base))

	upper := base
	upper.Host = "192.0.2.5"
	upper.Service = "SSH"
	require.False(t, d.Add(upper), "service comparison is case-insensitive")

	other := base
	other.Port = 2222
	require.True(t, d.Add(other))

	pw := base
	pw.Password = "toor2"
	require.True(t, d.Add(pw))

	sourced := base
	sourced.SourceJobID = "another-job"
	require.False(t, d.Add(sourced), "source job is not part of the key")

	require.Equal(t, 3, d.Len())
}

func TestParseProgress(t *testing.T) {
	p, ok := ParseProgress("[STATUS] 64.00 tries/min, 64 tries in 00:01h, 936 to do in 00:15h, 4 active")
	require.True(t, ok)
	require.Equal(t, int64(64), p.Done)
	require.Equal(t, int64(936), p.Todo)
	require.Equal(t, 6, p.Percent)

	p, ok = ParseProgress("[STATUS] 300.00 tries/min, 1000 tries in 00:03h, 0 to do in 00:00h, 1 active")
	require.True(t, ok)
	require.Equal(t, 100, p.Percent)

	_, ok = ParseProgress("[22][ssh] host: 192.0.2.5 login: root password: toor")
	require.False(t, ok)
}
