package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
)

const defaultRefreshTimeout = 15 * time.Second

// Mirror 跨进程共享凭证，刷新在分布式锁内进行
type Mirror interface {
	Lock(ctx context.Context) (unlock func(), err error)
	Load(ctx context.Context) (models.Credentials, bool, error)
	Save(ctx context.Context, creds models.Credentials) error
}

// CredentialStore 持有当前凭证。读取返回快照，刷新互斥且合并并发请求
type CredentialStore struct {
	mu        sync.RWMutex
	creds     models.Credentials
	refresher Refresher
	mirror    Mirror
	group     singleflight.Group
	timeout   time.Duration
	refreshes atomic.Int64
}

type StoreOption func(*CredentialStore)

func WithMirror(m Mirror) StoreOption {
	return func(s *CredentialStore) { s.mirror = m }
}

func WithRefreshTimeout(d time.Duration) StoreOption {
	return func(s *CredentialStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewCredentialStore(initial models.Credentials, refresher Refresher, opts ...StoreOption) *CredentialStore {
	s := &CredentialStore{
		creds:     initial,
		refresher: refresher,
		timeout:   defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 返回当前凭证快照
func (s *CredentialStore) Get() models.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// RefreshCount 本进程实际发起的刷新次数
func (s *CredentialStore) RefreshCount() int64 {
	return s.refreshes.Load()
}

// LoadShared 启动时从 mirror 采用更新的共享凭证
func (s *CredentialStore) LoadShared(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	shared, ok, err := s.mirror.Load(ctx)
	if err != nil || !ok {
		return err
	}
	s.adopt(shared)
	return nil
}

// Refresh 用 stale 中的刷新能力换取新凭证。
// stale 已被其他调用方替换时直接返回当前快照，不发起网络请求
func (s *CredentialStore) Refresh(ctx context.Context, stale models.Credentials) (models.Credentials, error) {
	if cur := s.Get(); cur.Version != stale.Version {
		return cur, nil
	}

	ch := s.group.DoChan("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(rctx, stale.Version)
	})

	select {
	case <-ctx.Done():
		return s.Get(), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return s.Get(), res.Err
		}
		return res.Val.(models.Credentials), nil
	}
}

func (s *CredentialStore) refresh(ctx context.Context, version uint64) (models.Credentials, error) {
	cur := s.Get()
	if cur.Version != version {
		return cur, nil
	}
	if !cur.CanRefresh() {
		return cur, code.Newf(code.ErrRefreshFailed, "credentials carry no refresh token")
	}

	if s.mirror != nil {
		unlock, err := s.mirror.Lock(ctx)
		if err != nil {
			return cur, code.New(code.ErrRefreshFailed, err)
		}
		defer unlock()

		shared, ok, err := s.mirror.Load(ctx)
		if err != nil {
			log.Warnf("load shared credentials failed: %v", err)
		} else if ok && shared.UpdatedAt.After(cur.UpdatedAt) && shared.Token != cur.Token {
			log.WithField("user_id", cur.UserID).Info("adopted credentials refreshed by another process")
			return s.adopt(shared), nil
		}
	}

	s.refreshes.Add(1)
	next, err := s.refresher.Refresh(ctx, cur)
	if err != nil {
		log.WithField("user_id", cur.UserID).Errorf("token refresh failed: %v", err)
		return cur, err
	}
	next = s.adopt(next)
	log.WithFields(log.Fields{
		"user_id": next.UserID,
		"version": next.Version,
		"expires": next.ExpiresAt().Format(time.RFC3339),
	}).Info("token refreshed")

	if s.mirror != nil {
		if err := s.mirror.Save(ctx, next); err != nil {
			log.Warnf("publish refreshed credentials failed: %v", err)
		}
	}
	return next, nil
}

// adopt 整体替换当前凭证并递增版本
func (s *CredentialStore) adopt(next models.Credentials) models.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	next.Version = s.creds.Version + 1
	s.creds = next
	return next
}
