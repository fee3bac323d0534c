package services

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"ima-agent/internal/app/models"
	"ima-agent/internal/app/repositories"
	"ima-agent/internal/pkg/storage"
	"ima-agent/pkg/config"
	"ima-agent/pkg/util"
)

var (
	initOnce sync.Once
	initErr  error
)

var (
	Store     *CredentialStore
	ImaClient *Client
	Dumps     *repositories.RawDumpRepository
)

// Init 根据配置装配凭证存储、传输层与提问客户端
func Init(ctx context.Context) error {
	initOnce.Do(func() {
		initErr = setup(ctx, config.GetImaConf(), config.GetRedisConf(), config.GetMysqlConf())
	})
	return initErr
}

func setup(ctx context.Context, conf config.Ima, redisConf config.Redis, mysqlConf config.Mysql) error {
	httpClient := NewReqClient(conf.AttemptTimeout)
	creds := models.LoadCredentials(conf.Cookie, conf.Bkn, conf.Cookies, conf.ClientID)
	if creds.CanRefresh() {
		log.Infof("credentials loaded: user_id=%s refresh_token=%s", creds.UserID, util.Mask(creds.RefreshToken))
	} else {
		log.Warn("cookie carries no IMA-UID / refresh token, expired sessions cannot be refreshed")
	}

	storeOpts := []StoreOption{WithRefreshTimeout(conf.RefreshTimeout)}
	if redisConf.Enable {
		if err := storage.InitRedis(ctx, redisConf); err != nil {
			return err
		}
		storeOpts = append(storeOpts, WithMirror(NewRedisMirror(storage.Redis, redisConf.KeyPrefix)))
	}
	Store = NewCredentialStore(creds, NewHTTPRefresher(httpClient, conf.BaseURL, conf.RefreshAttempts), storeOpts...)
	if err := Store.LoadShared(ctx); err != nil {
		log.Warnf("load shared credentials failed: %v", err)
	}

	var sink DiagnosticsSink
	if conf.RawLog.Enable {
		switch conf.RawLog.Sink {
		case "mysql":
			if !mysqlConf.Enable {
				return fmt.Errorf("raw log sink mysql requires mysql.enable")
			}
			if err := storage.InitMysql(mysqlConf); err != nil {
				return err
			}
			Dumps = repositories.NewRawDumpRepository()
			sink = NewDBSink(Dumps)
		default:
			sink = NewFileSink(conf.RawLog.Dir)
		}
	}

	transport := NewHTTPTransport(httpClient, conf.BaseURL)
	ImaClient = NewClient(Store, transport, OptionsFromConfig(conf, transport, sink))
	return nil
}

// OptionsFromConfig 把配置转换为客户端参数
func OptionsFromConfig(conf config.Ima, sessions SessionInitializer, sink DiagnosticsSink) Options {
	return Options{
		Defaults: models.AskParams{
			KnowledgeBaseID: conf.KnowledgeBaseID,
			RobotType:       conf.RobotType,
			SceneType:       conf.SceneType,
			ModelType:       conf.ModelType,
		},
		MaxAttempts:    conf.MaxAttempts,
		Timeout:        conf.Timeout,
		AttemptTimeout: conf.AttemptTimeout,
		Backoff: Backoff{
			Base:   conf.BackoffBase,
			Max:    conf.BackoffMax,
			Jitter: conf.Jitter,
		},
		EagerRefresh:  conf.EagerRefresh,
		Sessions:      sessions,
		Diagnostics:   sink,
		DumpMaxBytes:  conf.RawLog.MaxBytes,
		DumpOnSuccess: conf.RawLog.OnSuccess,
	}
}
