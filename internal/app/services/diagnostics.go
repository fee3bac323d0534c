package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ima-agent/internal/app/models"
)

// DiagnosticsSink 保存一次尝试的原始响应，返回可供定位的引用
type DiagnosticsSink interface {
	Save(ctx context.Context, dump *models.RawDump) (string, error)
}

type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

type dumpHeader struct {
	Timestamp      string  `json:"timestamp"`
	TraceID        string  `json:"trace_id"`
	Attempt        int     `json:"attempt"`
	Question       string  `json:"question"`
	Records        int     `json:"records"`
	Events         int     `json:"events"`
	Skipped        int     `json:"skipped"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ResponseBytes  int     `json:"response_bytes"`
	SavedBytes     int     `json:"saved_bytes"`
	Truncated      bool    `json:"truncated"`
	StreamError    string  `json:"stream_error,omitempty"`
}

func (s *FileSink) Save(_ context.Context, dump *models.RawDump) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	ts := dump.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	name := fmt.Sprintf("sse_%s_%06d_%s_attempt%d.log",
		ts.Format("20060102_150405"), ts.Nanosecond()/1000, dump.TraceID, dump.Attempt)
	path := filepath.Join(s.dir, name)

	header, err := json.MarshalIndent(dumpHeader{
		Timestamp:      ts.Format(time.RFC3339Nano),
		TraceID:        dump.TraceID,
		Attempt:        dump.Attempt,
		Question:       dump.Question,
		Records:        dump.Records,
		Events:         dump.Events,
		Skipped:        dump.Skipped,
		ElapsedSeconds: dump.ElapsedSeconds,
		ResponseBytes:  dump.ResponseBytes,
		SavedBytes:     len(dump.Body),
		Truncated:      dump.Truncated,
		StreamError:    dump.StreamError,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(header); err != nil {
		return "", err
	}
	if _, err := f.WriteString("\n\n"); err != nil {
		return "", err
	}
	if _, err := f.Write(dump.Body); err != nil {
		return "", err
	}
	return path, nil
}

type rawDumpCreator interface {
	Create(dump *models.RawDump) error
}

// DBSink 把原始响应写入 ima_raw_dump 表
type DBSink struct {
	repo rawDumpCreator
}

func NewDBSink(repo rawDumpCreator) *DBSink {
	return &DBSink{repo: repo}
}

func (s *DBSink) Save(_ context.Context, dump *models.RawDump) (string, error) {
	if err := s.repo.Create(dump); err != nil {
		return "", fmt.Errorf("save raw dump: %w", err)
	}
	return fmt.Sprintf("mysql:%s/%d", dump.TableName(), dump.ID), nil
}

// capture 在读取流的同时保留最多 limit 字节
type capture struct {
	buf       []byte
	limit     int
	total     int
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.total += len(p)
	room := c.limit - len(c.buf)
	if room <= 0 {
		if len(p) > 0 {
			c.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		c.buf = append(c.buf, p[:room]...)
		c.truncated = true
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}
