package code

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 错误分类
var (
	ErrNetwork          = errors.New("network error")
	ErrAuthentication   = errors.New("authentication failed")
	ErrRefreshFailed    = errors.New("refresh failed")
	ErrIncompleteStream = errors.New("incomplete stream")
	ErrMalformedStream  = errors.New("malformed stream")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrTimeout          = errors.New("timeout")
)

var kinds = []error{
	ErrTimeout,
	ErrRetriesExhausted,
	ErrRefreshFailed,
	ErrAuthentication,
	ErrMalformedStream,
	ErrIncompleteStream,
	ErrNetwork,
}

// Error 携带分类、底层原因以及可选的诊断文件引用
type Error struct {
	Kind     error
	Err      error
	Artifact string
	Attempts int
}

func New(kind error, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Artifact != "" {
		b.WriteString(" (raw response: ")
		b.WriteString(e.Artifact)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf 返回错误链上优先级最高的分类，未分类时返回 nil
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable 网络错误与流错误可以在预算内重试
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrNetwork, ErrIncompleteStream, ErrMalformedStream:
		return true
	}
	return false
}

// ArtifactOf 返回错误链上第一个诊断文件引用
func ArtifactOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Artifact != "" {
			return e.Artifact
		}
		err = e.Err
	}
	return ""
}

// FromContext 把 context 的结束原因映射为超时
func FromContext(ctx context.Context, last error) *Error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	if last != nil {
		cause = fmt.Errorf("%w (last error: %v)", cause, last)
	}
	return New(ErrTimeout, cause)
}
