package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ima-agent/pkg/config"
)

var Redis *redis.Client

// InitRedis 连接用于共享凭证的 redis
func InitRedis(ctx context.Context, conf config.Redis) error {
	if Redis != nil {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("ping redis %s: %w", conf.Addr, err)
	}
	Redis = rdb
	log.Infof("redis connection success: %s", conf.Addr)
	return nil
}
