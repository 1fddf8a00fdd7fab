package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vulntor/attackq/pkg/job"
)

// Cursor marks the last job of a page. Jobs are ordered by queue time, then
// id, so a cursor stays valid while new jobs arrive.
type Cursor struct {
	LastJobID string `json:"id"`
	LastTime  int64  `json:"ts"` // Unix timestamp in nanoseconds
}

// EncodeCursor encodes a cursor to a base64 URL-safe string.
// Returns empty string if cursor is nil or invalid.
func EncodeCursor(c *Cursor) string {
	if c == nil || c.LastJobID == "" {
		return ""
	}

	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}

	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a base64-encoded cursor string.
// Returns nil and no error for empty cursor (first page).
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil // First page
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewInvalidInputError("cursor", fmt.Sprintf("invalid encoding: %v", err))
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, NewInvalidInputError("cursor", fmt.Sprintf("invalid format: %v", err))
	}

	if c.LastJobID == "" {
		return nil, NewInvalidInputError("cursor", "missing job id")
	}

	return &c, nil
}

func cursorFor(j job.Job) *Cursor {
	return &Cursor{LastJobID: j.ID, LastTime: j.QueuedAt.UnixNano()}
}

// after reports whether j sorts strictly after the cursor position.
func (c *Cursor) after(j job.Job) bool {
	ts := j.QueuedAt.UnixNano()
	if ts != c.LastTime {
		return ts > c.LastTime
	}
	return j.ID > c.LastJobID
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
