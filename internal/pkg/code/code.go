package code

import (
	"errors"
	"net/http"
)

// 接口响应码
const (
	Success             = 0
	InvalidParams       = 10001
	NetworkError        = 20001
	AuthenticationError = 20002
	RefreshError        = 20003
	IncompleteStream    = 20004
	MalformedStream     = 20005
	RetriesExhausted    = 20006
	Timeout             = 20007
	InternalError       = 50000
)

const (
	MsgSuccess       = "success"
	MsgInvalidParams = "invalid params"
)

// FromError 返回错误对应的响应码
func FromError(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrRefreshFailed):
		return RefreshError
	case errors.Is(err, ErrAuthentication):
		return AuthenticationError
	case errors.Is(err, ErrRetriesExhausted):
		return RetriesExhausted
	case errors.Is(err, ErrMalformedStream):
		return MalformedStream
	case errors.Is(err, ErrIncompleteStream):
		return IncompleteStream
	case errors.Is(err, ErrNetwork):
		return NetworkError
	}
	return InternalError
}

// HTTPStatus 返回错误对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch FromError(err) {
	case Success:
		return http.StatusOK
	case Timeout:
		return http.StatusGatewayTimeout
	case AuthenticationError, RefreshError:
		return http.StatusUnauthorized
	case InternalError:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
