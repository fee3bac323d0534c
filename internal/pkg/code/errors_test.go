package code

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestError_UnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("refresh rejected")
	refresh := New(ErrRefreshFailed, cause)
	err := fmt.Errorf("ask: %w", New(ErrAuthentication, refresh))

	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrAuthentication, KindOf(err))
	assert.Equal(t, RefreshError, FromError(err))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(err))
	assert.Equal(t, "ask: authentication failed: refresh failed: refresh rejected", err.Error())
}

func TestKindOfAndRetryable(t *testing.T) {
	tests := []struct {
		err       error
		kind      error
		retryable bool
	}{
		{Newf(ErrNetwork, "reset"), ErrNetwork, true},
		{Newf(ErrIncompleteStream, "eof"), ErrIncompleteStream, true},
		{Newf(ErrMalformedStream, "bad"), ErrMalformedStream, true},
		{Newf(ErrAuthentication, "401"), ErrAuthentication, false},
		{Newf(ErrRetriesExhausted, "x"), ErrRetriesExhausted, false},
		{fmt.Errorf("wrapped: %w", ErrTimeout), ErrTimeout, false},
		{errors.New("plain"), nil, false},
		{nil, nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.err))
		assert.Equal(t, tt.retryable, Retryable(tt.err))
	}
}

func TestArtifactOf(t *testing.T) {
	inner := &Error{Kind: ErrMalformedStream, Err: errors.New("bad"), Artifact: "logs/a.log"}
	outer := &Error{Kind: ErrRetriesExhausted, Err: inner}

	assert.Equal(t, "logs/a.log", ArtifactOf(outer))
	assert.Equal(t, "", ArtifactOf(errors.New("x")))
	assert.Contains(t, inner.Error(), "(raw response: logs/a.log)")
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := FromContext(ctx, New(ErrNetwork, errors.New("reset")))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "last error: network error: reset")
	assert.Equal(t, Timeout, FromError(err))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(err))
}

func TestClassifyRemote(t *testing.T) {
	assert.ErrorIs(t, ClassifyRemote(600002, ""), ErrAuthentication)
	assert.ErrorIs(t, ClassifyRemote(1, "Token Expired"), ErrAuthentication)
	assert.ErrorIs(t, ClassifyRemote(1, "会话已过期"), ErrAuthentication)
	assert.ErrorIs(t, ClassifyRemote(500, "server busy"), ErrMalformedStream)
	assert.Equal(t, InternalError, FromError(errors.New("x")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(ClassifyRemote(500, "x")))
}
