package models

type RespValue struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Err  string      `json:"err,omitempty"`
	Data interface{} `json:"data"`
}

// AskBody HTTP 提问请求
type AskBody struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id"`
}

// AskReply HTTP 提问响应
type AskReply struct {
	TraceID    string      `json:"trace_id"`
	Answer     string      `json:"answer"`
	References []Reference `json:"references"`
	Attempts   int         `json:"attempts"`
}

// TokenStatus 不包含任何密钥的凭证状态
type TokenStatus struct {
	HasToken   bool   `json:"has_token"`
	CanRefresh bool   `json:"can_refresh"`
	Version    uint64 `json:"version"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}
