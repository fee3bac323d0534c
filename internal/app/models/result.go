package models

import "time"

// Result 一次提问的最终结果，构造后不再修改
type Result struct {
	Answer     string      `json:"answer"`
	References []Reference `json:"references"`
}

type State int

const (
	StateAttempting State = iota
	StateRetrying
	StateRefreshingThenRetrying
	StateSucceeded
	StateFailedTerminal
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateRefreshingThenRetrying:
		return "refreshing_then_retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailedTerminal:
		return "failed_terminal"
	default:
		return "unknown"
	}
}

// AttemptState 单次提问内的尝试状态
type AttemptState struct {
	TraceID   string
	State     State
	Attempt   int // 已发起的尝试次数，包括刷新后的重试
	Refreshed bool
	// 提问开始前已主动刷新过 token，认证失败时不再刷新
	EagerRefreshed bool
	LastErr        error
	Delays         []time.Duration
}

// NetworkAttempts 计入重试预算的尝试次数
func (s AttemptState) NetworkAttempts() int {
	if s.Refreshed && s.Attempt > 1 {
		return s.Attempt - 1
	}
	return s.Attempt
}
