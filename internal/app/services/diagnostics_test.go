package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ima-agent/internal/app/models"
)

func TestFileSink_WritesHeaderAndBody(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "raw")
	sink := NewFileSink(dir)
	dump := &models.RawDump{
		TraceID:       "abcd1234",
		Attempt:       2,
		Question:      "q",
		Records:       3,
		ResponseBytes: 11,
		StreamError:   "incomplete stream",
		Body:          []byte("event: text"),
		CreatedAt:     time.Date(2025, 3, 4, 5, 6, 7, 8000, time.Local),
	}

	path, err := sink.Save(context.Background(), dump)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sse_20250304_050607_000008_abcd1234_attempt2.log"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	header, body, found := strings.Cut(string(raw), "\n\n")
	require.True(t, found)
	assert.Equal(t, "event: text", body)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(header), &meta))
	assert.Equal(t, "abcd1234", meta["trace_id"])
	assert.Equal(t, float64(2), meta["attempt"])
	assert.Equal(t, float64(11), meta["saved_bytes"])
	assert.Equal(t, "incomplete stream", meta["stream_error"])

	// 同名文件不会被覆盖
	_, err = sink.Save(context.Background(), dump)
	assert.True(t, errors.Is(err, os.ErrExist))
}

type fakeDumpRepo struct {
	created []*models.RawDump
	err     error
}

func (r *fakeDumpRepo) Create(dump *models.RawDump) error {
	if r.err != nil {
		return r.err
	}
	dump.ID = uint64(len(r.created) + 1)
	r.created = append(r.created, dump)
	return nil
}

func TestDBSink(t *testing.T) {
	repo := &fakeDumpRepo{}
	ref, err := NewDBSink(repo).Save(context.Background(), &models.RawDump{TraceID: "t"})
	require.NoError(t, err)
	assert.Equal(t, "mysql:ima_raw_dump/1", ref)
	assert.Len(t, repo.created, 1)

	repo.err = errors.New("db down")
	_, err = NewDBSink(repo).Save(context.Background(), &models.RawDump{TraceID: "t"})
	assert.ErrorContains(t, err, "db down")
}

func TestCapture(t *testing.T) {
	c := newCapture(5)
	n, err := c.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = c.Write([]byte("defg"))
	assert.Equal(t, 4, n)
	_, _ = c.Write([]byte("h"))

	assert.Equal(t, "abcde", string(c.buf))
	assert.Equal(t, 8, c.total)
	assert.True(t, c.truncated)
}
