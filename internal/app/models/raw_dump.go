package models

import "time"

// RawDump 一次尝试的原始流响应，用于排查解析问题
type RawDump struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement;comment:主键" json:"id"`
	TraceID        string    `gorm:"size:64;not null;index;comment:请求追踪ID" json:"trace_id"`
	Attempt        int       `gorm:"not null;comment:尝试序号" json:"attempt"`
	Question       string    `gorm:"size:300;default:null;comment:问题预览" json:"question"`
	Records        int       `gorm:"not null;default:0;comment:记录数" json:"records"`
	Events         int       `gorm:"not null;default:0;comment:事件数" json:"events"`
	Skipped        int       `gorm:"not null;default:0;comment:跳过的载荷数" json:"skipped"`
	ElapsedSeconds float64   `gorm:"type:decimal(10,3);comment:耗时" json:"elapsed_seconds"`
	ResponseBytes  int       `gorm:"not null;comment:原始响应字节数" json:"response_bytes"`
	Truncated      bool      `gorm:"not null;default:false;comment:是否被截断保存" json:"truncated"`
	StreamError    string    `gorm:"size:1000;default:null;comment:流错误" json:"stream_error"`
	Body           []byte    `gorm:"type:longblob;comment:原始响应" json:"-"`
	CreatedAt      time.Time `gorm:"type:datetime;not null;default:CURRENT_TIMESTAMP;comment:记录创建时间" json:"created_at"`
}

// TableName 指定表名
func (RawDump) TableName() string {
	return "ima_raw_dump"
}
