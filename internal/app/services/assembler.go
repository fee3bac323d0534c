package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
	"ima-agent/pkg/util"
)

// EventSource 按到达顺序提供事件
type EventSource interface {
	Next() (models.Event, error)
}

// Assembler 把一次尝试的事件序列组装成结果：文本按到达顺序追加，引用按首次出现顺序去重
type Assembler struct {
	text strings.Builder
	refs []models.Reference
	seen map[string]struct{}
}

func NewAssembler() *Assembler {
	return &Assembler{seen: make(map[string]struct{})}
}

// Assemble 消费完整事件序列。只有看到 done 事件才返回结果，
// 否则返回 IncompleteStream / MalformedStream 或事件中携带的错误。
func Assemble(src EventSource) (*models.Result, error) {
	a := NewAssembler()
	for {
		ev, err := src.Next()
		if err != nil {
			return nil, readError(err)
		}
		done, err := a.Apply(ev)
		if err != nil {
			return nil, err
		}
		if done {
			return a.Result(), nil
		}
	}
}

// Apply 处理单个事件，done 为 true 表示流已完整结束
func (a *Assembler) Apply(ev models.Event) (done bool, err error) {
	switch ev.Kind {
	case models.EventText:
		text, err := decodeText(ev.Data)
		if err != nil {
			return false, err
		}
		a.text.WriteString(text)
	case models.EventReference:
		ref, err := decodeReference(ev.Data)
		if err != nil {
			return false, err
		}
		if _, ok := a.seen[ref.ID]; !ok {
			a.seen[ref.ID] = struct{}{}
			a.refs = append(a.refs, ref)
		}
	case models.EventError:
		return false, decodeError(ev)
	case models.EventDone:
		return true, nil
	default:
		return false, code.Newf(code.ErrMalformedStream, "unexpected event kind %d", ev.Kind)
	}
	return false, nil
}

// Result 返回当前累积内容的副本
func (a *Assembler) Result() *models.Result {
	refs := make([]models.Reference, len(a.refs))
	copy(refs, a.refs)
	return &models.Result{Answer: a.text.String(), References: refs}
}

func readError(err error) error {
	var e *code.Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, ErrTruncated), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return code.New(code.ErrIncompleteStream, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return code.New(code.ErrNetwork, err)
}

// decodeText 接受 JSON 字符串、带 text/content/Text 字段的对象，其余按原文处理
func decodeText(data string) (string, error) {
	s := strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(s, `"`):
		var text string
		if err := json.Unmarshal([]byte(s), &text); err != nil {
			return "", code.Newf(code.ErrMalformedStream, "bad text payload: %v", err)
		}
		return text, nil
	case strings.HasPrefix(s, "{") && gjson.Valid(s):
		res := gjson.Parse(s)
		for _, key := range []string{"text", "content", "Text"} {
			if v := res.Get(key); v.Type == gjson.String {
				return v.Str, nil
			}
		}
		return "", code.Newf(code.ErrMalformedStream, "bad text payload: %q", util.Preview(s, 80))
	}
	return data, nil
}

func decodeReference(data string) (models.Reference, error) {
	s := strings.TrimSpace(data)
	if !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return models.Reference{}, code.Newf(code.ErrMalformedStream, "bad reference payload: %q", util.Preview(s, 80))
	}
	res := gjson.Parse(s)
	ref := models.Reference{
		ID:            res.Get("id").String(),
		Title:         res.Get("title").String(),
		Subtitle:      res.Get("subtitle").String(),
		Introduction:  res.Get("introduction").String(),
		KnowledgeBase: res.Get("knowledge_base").String(),
		Timestamp:     res.Get("timestamp").Int(),
	}
	for _, key := range []string{"locator", "url", "jump_url"} {
		if v := res.Get(key).String(); v != "" {
			ref.Locator = v
			break
		}
	}
	if ref.ID == "" {
		return models.Reference{}, code.Newf(code.ErrMalformedStream, "reference without id: %q", util.Preview(s, 80))
	}
	return ref, nil
}

func decodeError(ev models.Event) error {
	if ev.Opaque {
		return code.Newf(code.ErrMalformedStream, "unknown event type %q", ev.Marker)
	}
	s := strings.TrimSpace(ev.Data)
	if gjson.Valid(s) && gjson.Parse(s).IsObject() {
		res := gjson.Parse(s)
		msg := res.Get("msg").String()
		if msg == "" {
			msg = res.Get("message").String()
		}
		return code.ClassifyRemote(int(res.Get("code").Int()), msg)
	}
	return code.ClassifyRemote(0, s)
}
