package code

import (
	"fmt"
	"strings"
)

// 登录失效相关的业务码
var loginExpiredCodes = map[int]struct{}{
	600001: {},
	600002: {},
	600003: {},
}

var loginExpiredPatterns = []string{
	"session initialization failed",
	"登录过期", "登录失败", "authentication failed", "认证失败",
	"token expired", "会话已过期", "请重新登录", "unauthorized",
}

// IsLoginExpired 根据业务码和错误信息判断是否为登录失效
func IsLoginExpired(c int, msg string) bool {
	if _, ok := loginExpiredCodes[c]; ok {
		return true
	}
	lower := strings.ToLower(msg)
	for _, p := range loginExpiredPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// ClassifyRemote 将服务端返回的错误映射到分类
func ClassifyRemote(c int, msg string) *Error {
	err := fmt.Errorf("remote error (code: %d): %s", c, msg)
	if IsLoginExpired(c, msg) {
		return New(ErrAuthentication, err)
	}
	return New(ErrMalformedStream, err)
}
