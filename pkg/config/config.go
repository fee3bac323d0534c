package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 与原有部署脚本保持一致的环境变量名
var envBindings = map[string]string{
	"ima.baseUrl":         "IMA_BASE_URL",
	"ima.cookie":          "IMA_X_IMA_COOKIE",
	"ima.bkn":             "IMA_X_IMA_BKN",
	"ima.cookies":         "IMA_COOKIES",
	"ima.clientId":        "IMA_CLIENT_ID",
	"ima.knowledgeBaseId": "IMA_KNOWLEDGE_BASE_ID",
	"ima.robotType":       "IMA_ROBOT_TYPE",
	"ima.sceneType":       "IMA_SCENE_TYPE",
	"ima.modelType":       "IMA_MODEL_TYPE",
	"ima.timeout":         "IMA_TIMEOUT",
	"ima.retryCount":      "IMA_RETRY_COUNT",
	"ima.rawLog.enable":   "IMA_ENABLE_RAW_LOGGING",
	"ima.rawLog.dir":      "IMA_RAW_LOG_DIR",
	"redis.enable":        "IMA_REDIS_ENABLE",
	"redis.addr":          "IMA_REDIS_ADDR",
	"redis.password":      "IMA_REDIS_PASSWORD",
	"mysql.enable":        "IMA_MYSQL_ENABLE",
	"mysql.host":          "IMA_MYSQL_HOST",
	"mysql.username":      "IMA_MYSQL_USERNAME",
	"mysql.password":      "IMA_MYSQL_PASSWORD",
	"mysql.dbName":        "IMA_MYSQL_DBNAME",
	"server.addr":         "IMA_SERVER_ADDR",
	"server.runMode":      "IMA_RUN_MODE",
	"log.level":           "IMA_LOG_LEVEL",
	"log.file":            "IMA_LOG_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ima.baseUrl", "https://ima.qq.com")
	v.SetDefault("ima.robotType", 5)
	v.SetDefault("ima.sceneType", 1)
	v.SetDefault("ima.modelType", 4)
	v.SetDefault("ima.timeout", "600s")
	v.SetDefault("ima.attemptTimeout", "180s")
	v.SetDefault("ima.maxAttempts", 3)
	v.SetDefault("ima.backoffBase", "1s")
	v.SetDefault("ima.backoffMax", "10s")
	v.SetDefault("ima.jitter", true)
	v.SetDefault("ima.refreshAttempts", 3)
	v.SetDefault("ima.refreshTimeout", "15s")
	v.SetDefault("ima.eagerRefresh", true)
	v.SetDefault("ima.rawLog.sink", "file")
	v.SetDefault("ima.rawLog.dir", "logs/sse_raw")
	v.SetDefault("ima.rawLog.maxBytes", 1048576)
	v.SetDefault("redis.keyPrefix", "ima:")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.runMode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.maxSizeMb", 10)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAgeDays", 7)
}

// Init 加载 .env、配置文件与环境变量，path 为空时只使用环境变量
func Init(path string) error {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env loaded: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	return load(v)
}

type settings struct {
	Ima    Ima    `mapstructure:"ima"`
	Redis  Redis  `mapstructure:"redis"`
	Mysql  Mysql  `mapstructure:"mysql"`
	Server Server `mapstructure:"server"`
	Log    Log    `mapstructure:"log"`
}

// secondsHook 兼容旧配置里以整数秒书写的时长，例如 IMA_TIMEOUT=30
func secondsHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		s := strings.TrimSpace(data.(string))
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return s, nil
	case reflect.Int, reflect.Int64, reflect.Int32:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Float64, reflect.Float32:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	}
	return data, nil
}

func load(v *viper.Viper) error {
	var s settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	// retryCount 为失败后的重试次数，总尝试次数多一次；设置时优先于 maxAttempts
	if v.IsSet("ima.retryCount") {
		s.Ima.MaxAttempts = v.GetInt("ima.retryCount") + 1
	}
	imaConf, redisConf, mysqlConf, serverConf, logConf = s.Ima, s.Redis, s.Mysql, s.Server, s.Log
	return imaConf.Validate()
}
