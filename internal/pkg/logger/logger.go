package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"ima-agent/pkg/config"
)

// Setup 配置 logrus 级别、格式与输出，file 非空时同时写入滚动日志文件
func Setup(conf config.Log) error {
	level, err := log.ParseLevel(strings.ToLower(conf.Level))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if conf.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	if conf.File == "" {
		log.SetOutput(os.Stderr)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(conf.File), 0o755); err != nil {
		return err
	}
	rotator := &lumberjack.Logger{
		Filename:   conf.File,
		MaxSize:    conf.MaxSizeMB,
		MaxBackups: conf.MaxBackups,
		MaxAge:     conf.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}
