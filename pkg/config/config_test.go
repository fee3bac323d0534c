package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("IMA_X_IMA_COOKIE", "IMA-UID=u1; IMA-REFRESH-TOKEN=rt")
	t.Setenv("IMA_X_IMA_BKN", "bkn")
	t.Setenv("IMA_CLIENT_ID", "client")
	t.Setenv("IMA_KNOWLEDGE_BASE_ID", "kb1")
}

func TestInit_EnvAndDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IMA_TIMEOUT", "30")
	t.Setenv("IMA_RETRY_COUNT", "5")
	t.Setenv("IMA_ROBOT_TYPE", "7")

	require.NoError(t, Init(""))

	conf := GetImaConf()
	assert.Equal(t, "kb1", conf.KnowledgeBaseID)
	assert.Equal(t, "bkn", conf.Bkn)
	assert.Equal(t, 30*time.Second, conf.Timeout)
	assert.Equal(t, 6, conf.MaxAttempts)
	assert.Equal(t, 7, conf.RobotType)
	assert.Equal(t, 1, conf.SceneType)
	assert.Equal(t, "https://ima.qq.com", conf.BaseURL)
	assert.Equal(t, 180*time.Second, conf.AttemptTimeout)
	assert.Equal(t, time.Second, conf.BackoffBase)
	assert.Equal(t, 10*time.Second, conf.BackoffMax)
	assert.True(t, conf.Jitter)
	assert.Equal(t, "logs/sse_raw", conf.RawLog.Dir)
	assert.Equal(t, 1048576, conf.RawLog.MaxBytes)

	assert.Equal(t, "ima:", GetRedisConf().KeyPrefix)
	assert.Equal(t, ":8080", GetServerConf().Addr)
	assert.Equal(t, "release", GetRunMode())
	assert.Equal(t, "info", GetLogConf().Level)
}

func TestInit_ConfigFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ima:
  backoffBase: 250ms
  jitter: false
  rawLog:
    enable: true
    sink: mysql
redis:
  enable: true
  addr: 127.0.0.1:6379
log:
  level: debug
`), 0o644))

	require.NoError(t, Init(path))
	conf := GetImaConf()
	assert.Equal(t, 250*time.Millisecond, conf.BackoffBase)
	assert.False(t, conf.Jitter)
	assert.True(t, conf.RawLog.Enable)
	assert.Equal(t, "mysql", conf.RawLog.Sink)
	assert.True(t, GetRedisConf().Enable)
	assert.Equal(t, "127.0.0.1:6379", GetRedisConf().Addr)
	assert.Equal(t, "debug", GetLogConf().Level)
	// 环境变量优先于文件
	assert.Equal(t, "kb1", conf.KnowledgeBaseID)
}

func TestInit_MissingRequired(t *testing.T) {
	t.Setenv("IMA_X_IMA_COOKIE", "")
	t.Setenv("IMA_X_IMA_BKN", "")
	t.Setenv("IMA_CLIENT_ID", "")
	t.Setenv("IMA_KNOWLEDGE_BASE_ID", "")

	err := Init("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMA_X_IMA_COOKIE")
	assert.Contains(t, err.Error(), "IMA_KNOWLEDGE_BASE_ID")
}

func TestInit_BadConfigFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ima: [unclosed"), 0o644))
	assert.Error(t, Init(path))
}

func TestInit_RetryCountAddsTheFirstAttempt(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ima:\n  maxAttempts: 4\n"), 0o644))

	require.NoError(t, Init(path))
	assert.Equal(t, 4, GetImaConf().MaxAttempts)

	t.Setenv("IMA_RETRY_COUNT", "0")
	require.NoError(t, Init(path))
	assert.Equal(t, 1, GetImaConf().MaxAttempts)
}
