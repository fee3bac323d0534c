package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
	"ima-agent/pkg/util"
)

// Refresher 使用凭证中的刷新能力换取新的 token
type Refresher interface {
	Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error)
}

type HTTPRefresher struct {
	client   *req.Client
	baseURL  string
	attempts uint
	delay    time.Duration
	maxDelay time.Duration
	now      func() time.Time
}

func NewHTTPRefresher(client *req.Client, baseURL string, attempts int) *HTTPRefresher {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPRefresher{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		attempts: uint(attempts),
		delay:    500 * time.Millisecond,
		maxDelay: 5 * time.Second,
		now:      time.Now,
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	if !creds.CanRefresh() {
		return creds, code.Newf(code.ErrRefreshFailed, "no refresh capability in credentials")
	}

	var out models.TokenRefreshResponse
	err := retry.Do(
		func() error {
			var err error
			out, err = r.call(ctx, creds)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(r.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, code.ErrNetwork)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithField("user_id", creds.UserID).Warnf("refresh attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		if errors.Is(err, code.ErrRefreshFailed) {
			return creds, err
		}
		return creds, code.New(code.ErrRefreshFailed, err)
	}

	next := creds
	next.Token = out.Token
	next.ValidFor = tokenTTL(out.TokenValidTime)
	next.UpdatedAt = r.now()
	return next, nil
}

func (r *HTTPRefresher) call(ctx context.Context, creds models.Credentials) (models.TokenRefreshResponse, error) {
	var out models.TokenRefreshResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("x-ima-cookie", creds.Cookie).
		SetHeader("x-ima-bkn", creds.Bkn).
		SetHeader("content-type", "application/json").
		SetBodyJsonMarshal(models.TokenRefreshRequest{
			UserID:       creds.UserID,
			RefreshToken: creds.RefreshToken,
			TokenType:    util.RefreshTokenType,
		}).
		SetSuccessResult(&out).
		Post(r.baseURL + util.RefreshPath)
	if err != nil {
		return out, code.New(code.ErrNetwork, err)
	}
	if resp.StatusCode >= 500 {
		return out, code.Newf(code.ErrNetwork, "refresh endpoint returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != 200 {
		return out, code.Newf(code.ErrRefreshFailed, "refresh endpoint returned HTTP %d", resp.StatusCode)
	}
	if out.Code != 0 || out.Token == "" {
		return out, code.Newf(code.ErrRefreshFailed, "refresh rejected: code=%d msg=%s", out.Code, out.Msg)
	}
	return out, nil
}

func tokenTTL(s string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || secs <= 0 {
		secs = util.DefaultTokenTTL
	}
	return time.Duration(secs) * time.Second
}
