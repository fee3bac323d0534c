package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"ima-agent/internal/app/models"
)

// ErrTruncated 流在 done 事件之前结束
var ErrTruncated = errors.New("stream ended without done event")

const (
	readChunkSize = 32 * 1024
	qaMessageType = 3
)

// DecodeStats 解码计数，写入诊断信息
type DecodeStats struct {
	Bytes   int `json:"bytes"`
	Records int `json:"records"`
	Events  int `json:"events"`
	Skipped int `json:"skipped"`
}

type record struct {
	marker    string
	hasMarker bool
	data      []string
}

func (r *record) empty() bool {
	return !r.hasMarker && len(r.data) == 0
}

// Decoder 从字节流中按需解出事件。
// 记录以空行分隔，只在完整的行到达后才解析，所以多字节字符与记录都不会被网络分片截断。
// 每次尝试新建一个 Decoder，不在尝试之间保留状态。
type Decoder struct {
	r        io.Reader
	chunk    []byte
	buf      []byte
	rec      record
	pending  []models.Event
	done     bool
	eof      bool
	finished bool
	err      error
	stats    DecodeStats
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, chunk: make([]byte, readChunkSize)}
}

// Next 返回下一个事件。done 事件之后返回 io.EOF；
// 源结束但没有 done 时，先返回已缓冲的事件，再返回 ErrTruncated。
func (d *Decoder) Next() (models.Event, error) {
	for {
		if d.done {
			return models.Event{}, io.EOF
		}
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			d.stats.Events++
			if ev.Kind == models.EventDone {
				d.done = true
			}
			return ev, nil
		}
		if d.drainLines() {
			continue
		}
		if d.err != nil {
			return models.Event{}, d.err
		}
		if d.eof {
			if !d.finished {
				d.finished = true
				d.finish()
			} else {
				d.err = ErrTruncated
			}
			continue
		}
		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.buf = append(d.buf, d.chunk[:n]...)
			d.stats.Bytes += n
		}
		if errors.Is(err, io.EOF) {
			d.eof = true
		} else if err != nil {
			d.err = err
		}
	}
}

func (d *Decoder) Stats() DecodeStats {
	return d.stats
}

// drainLines 处理缓冲区中所有完整的行，产生事件后立即返回 true
func (d *Decoder) drainLines() bool {
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return false
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		d.line(string(bytes.TrimSuffix(line, []byte{'\r'})))
		if len(d.pending) > 0 {
			return true
		}
	}
}

// finish 处理源结束时残留的半行与未闭合的记录
func (d *Decoder) finish() {
	if len(d.buf) > 0 {
		rest := string(bytes.TrimSuffix(d.buf, []byte{'\r'}))
		d.buf = nil
		d.line(rest)
	}
	d.dispatch()
}

func (d *Decoder) line(line string) {
	if line == "" {
		d.dispatch()
		return
	}
	if strings.HasPrefix(line, ":") {
		return
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		d.rec.data = append(d.rec.data, line)
		return
	}
	value = strings.TrimPrefix(value, " ")
	switch field {
	case "event":
		d.rec.marker = strings.TrimSpace(value)
		d.rec.hasMarker = d.rec.marker != ""
	case "data":
		d.rec.data = append(d.rec.data, value)
	case "id", "retry":
	default:
		// 旧版流直接输出 JSON 行，没有 data: 前缀
		d.rec.data = append(d.rec.data, line)
	}
}

func (d *Decoder) dispatch() {
	rec := d.rec
	d.rec = record{}
	if rec.empty() {
		return
	}
	d.stats.Records++

	if !rec.hasMarker {
		for _, line := range rec.data {
			d.probe(sanitize(line))
		}
		return
	}

	data := sanitize(strings.Join(rec.data, "\n"))
	kind, ok := markerKind(rec.marker)
	switch {
	case !ok:
		d.pending = append(d.pending, models.Event{Kind: models.EventError, Marker: rec.marker, Data: data, Opaque: true})
	case kind == 0:
		d.stats.Skipped++
	default:
		d.pending = append(d.pending, models.Event{Kind: kind, Marker: rec.marker, Data: data})
	}
}

// markerKind 返回标记对应的事件类型；心跳类标记返回 0，未知标记 ok 为 false
func markerKind(marker string) (models.EventKind, bool) {
	switch strings.ToLower(marker) {
	case "text", "delta", "text-delta", "append-text", "message":
		return models.EventText, true
	case "reference", "set-reference", "knowledgebase":
		return models.EventReference, true
	case "error":
		return models.EventError, true
	case "done", "end":
		return models.EventDone, true
	case "heartbeat", "ping":
		return 0, true
	}
	return 0, false
}

// probe 解析没有类型标记的 data 行，兼容服务端的多种载荷结构
func (d *Decoder) probe(line string) {
	s := strings.TrimSpace(line)
	if s == "" {
		return
	}
	if s == "[DONE]" {
		d.pending = append(d.pending, models.Event{Kind: models.EventDone})
		return
	}
	if !gjson.Valid(s) {
		d.stats.Skipped++
		return
	}
	res := gjson.Parse(s)

	if msgs := res.Get("msgs"); msgs.IsArray() {
		list := msgs.Array()
		if n := len(list); n > 0 && list[n-1].Get("content").IsObject() {
			d.qaMessage(list[n-1])
			return
		}
		for _, m := range list {
			if c := m.Get("content"); c.Type == gjson.String && c.Str != "" {
				d.emitText(c.Str)
				return
			}
		}
		d.stats.Skipped++
		return
	}

	if res.Get("type").Str == "knowledgeBase" {
		medias := res.Get("medias").Array()
		if len(medias) == 0 {
			d.stats.Skipped++
			return
		}
		for _, media := range medias {
			d.emitReference(media)
		}
		return
	}

	for _, key := range []string{"content", "Text"} {
		if c := res.Get(key); c.Type == gjson.String && c.Str != "" {
			d.emitText(c.Str)
			return
		}
	}

	if res.Get("question").Exists() {
		if a := res.Get("answer"); a.Type == gjson.String && a.Str != "" {
			d.emitText(a.Str)
			return
		}
	}

	if c := res.Get("code"); c.Exists() && c.Int() != 0 {
		payload, _ := json.Marshal(models.ErrorPayload{Code: int(c.Int()), Msg: res.Get("msg").String()})
		d.pending = append(d.pending, models.Event{Kind: models.EventError, Data: string(payload)})
		return
	}

	d.stats.Skipped++
}

// qaMessage 解析完整响应中的问答消息：answer 可能是 {"Text":...} 形式的 JSON 字符串，
// context_refs 是包含 medias 的 JSON 字符串。两者都为空时产生 error 事件。
func (d *Decoder) qaMessage(msg gjson.Result) {
	if msg.Get("type").Int() != qaMessageType {
		d.stats.Skipped++
		return
	}
	content := msg.Get("content")
	emitted := false
	if answer := content.Get("answer").String(); answer != "" {
		if inner := gjson.Parse(answer); gjson.Valid(answer) && inner.IsObject() && inner.Get("Text").Exists() {
			answer = inner.Get("Text").String()
		}
		d.emitText(answer)
		emitted = true
	}
	refs := content.Get("context_refs")
	if refs.Type == gjson.String {
		refs = gjson.Parse(refs.Str)
	}
	for _, media := range refs.Get("medias").Array() {
		if media.Get("id").String() == "" {
			continue
		}
		d.emitReference(media)
		emitted = true
	}
	if !emitted {
		payload, _ := json.Marshal(models.ErrorPayload{Msg: "no valid message in response"})
		d.pending = append(d.pending, models.Event{Kind: models.EventError, Data: string(payload)})
	}
}

func (d *Decoder) emitText(text string) {
	payload, _ := json.Marshal(text)
	d.pending = append(d.pending, models.Event{Kind: models.EventText, Data: string(payload)})
}

func (d *Decoder) emitReference(media gjson.Result) {
	ref := models.Reference{
		ID:            media.Get("id").String(),
		Title:         media.Get("title").String(),
		Locator:       media.Get("jump_url").String(),
		Subtitle:      media.Get("subtitle").String(),
		Introduction:  media.Get("introduction").String(),
		KnowledgeBase: media.Get("knowledge_base_info.name").String(),
		Timestamp:     media.Get("timestamp").Int(),
	}
	payload, _ := json.Marshal(ref)
	d.pending = append(d.pending, models.Event{Kind: models.EventReference, Data: string(payload)})
}

func sanitize(s string) string {
	return strings.ToValidUTF8(s, "�")
}
