package storage

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/attackq/pkg/job"
)

func TestCursor_EncodeDecode_Success(t *testing.T) {
	c := &Cursor{LastJobID: "job-123", LastTime: 1234567890}
	encoded := EncodeCursor(c)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, c.LastJobID, decoded.LastJobID)
	require.Equal(t, c.LastTime, decoded.LastTime)
}

func TestCursor_Encode_Empty(t *testing.T) {
	require.Equal(t, "", EncodeCursor(nil))
	require.Equal(t, "", EncodeCursor(&Cursor{LastTime: 123}))
}

func TestCursor_Decode_EmptyString(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestCursor_Decode_Invalid(t *testing.T) {
	missingID, _ := json.Marshal(Cursor{LastTime: 111})

	for name, encoded := range map[string]string{
		"base64":  "%%%not-base64%%%",
		"json":    base64.URLEncoding.EncodeToString([]byte("not-json")),
		"missing": base64.URLEncoding.EncodeToString(missingID),
	} {
		t.Run(name, func(t *testing.T) {
			c, err := DecodeCursor(encoded)
			require.Nil(t, c)
			require.True(t, IsInvalidInput(err))
		})
	}
}

func TestCursor_After(t *testing.T) {
	base := time.Unix(100, 0)
	c := cursorFor(job.Job{ID: "b", QueuedAt: base})

	require.True(t, c.after(job.Job{ID: "a", QueuedAt: base.Add(time.Nanosecond)}))
	require.True(t, c.after(job.Job{ID: "c", QueuedAt: base}))
	require.False(t, c.after(job.Job{ID: "b", QueuedAt: base}))
	require.False(t, c.after(job.Job{ID: "z", QueuedAt: base.Add(-time.Second)}))
}
