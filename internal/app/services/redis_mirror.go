package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ima-agent/internal/app/models"
)

const (
	mirrorLockExpiry = 30 * time.Second
	mirrorLockTries  = 60
	mirrorLockDelay  = 500 * time.Millisecond
)

// RedisMirror 通过 redis 在多个进程间共享刷新后的凭证
type RedisMirror struct {
	rdb     *redis.Client
	rs      *redsync.Redsync
	credKey string
	lockKey string
}

func NewRedisMirror(rdb *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{
		rdb:     rdb,
		rs:      redsync.New(goredis.NewPool(rdb)),
		credKey: prefix + "credentials",
		lockKey: prefix + "refresh_lock",
	}
}

func (m *RedisMirror) Lock(ctx context.Context) (func(), error) {
	mutex := m.rs.NewMutex(m.lockKey,
		redsync.WithExpiry(mirrorLockExpiry),
		redsync.WithTries(mirrorLockTries),
		redsync.WithRetryDelay(mirrorLockDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	return func() {
		// 锁可能已过期，解锁失败只记录
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			log.Warnf("release refresh lock: %v", err)
		}
	}, nil
}

func (m *RedisMirror) Load(ctx context.Context) (models.Credentials, bool, error) {
	var creds models.Credentials
	raw, err := m.rdb.Get(ctx, m.credKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return creds, false, nil
	}
	if err != nil {
		return creds, false, err
	}
	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, false, fmt.Errorf("decode shared credentials: %w", err)
	}
	return creds, true, nil
}

func (m *RedisMirror) Save(ctx context.Context, creds models.Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if creds.ValidFor > 0 {
		ttl = creds.ValidFor
	}
	return m.rdb.Set(ctx, m.credKey, raw, ttl).Err()
}
