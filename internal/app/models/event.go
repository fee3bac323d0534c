package models

type EventKind int

const (
	EventText EventKind = iota + 1
	EventReference
	EventError
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text-delta"
	case EventReference:
		return "reference"
	case EventError:
		return "error"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event 解码后的一条流事件，Data 为原始载荷
type Event struct {
	Kind   EventKind
	Marker string // 记录中的原始类型标记，未带标记的记录为空
	Data   string
	Opaque bool // 未知标记，原样保留
}

// ErrorPayload error 事件载荷
type ErrorPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Reference 引用来源，ID 为唯一标识
type Reference struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Locator       string `json:"locator,omitempty"`
	Subtitle      string `json:"subtitle,omitempty"`
	Introduction  string `json:"introduction,omitempty"`
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}
