package util

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ima-agent/internal/app/models"
)

// 事件类型标记
const (
	MarkerText      = "text"
	MarkerReference = "reference"
	MarkerError     = "error"
	MarkerDone      = "done"
)

// WriteSSE 写出一条带类型标记的记录，data 为字符串时原样输出，否则按 JSON 编码。
// 多行载荷拆成多条 data 行。
func WriteSSE(w io.Writer, eventType string, data interface{}) error {
	var payload string
	switch v := data.(type) {
	case nil:
		payload = ""
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return err
		}
		payload = string(bytes)
	}

	var b strings.Builder
	if eventType != "" {
		fmt.Fprintf(&b, "event: %s\n", eventType)
	}
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	flush(w)
	return nil
}

func WriteText(w io.Writer, text string) error {
	bytes, err := json.Marshal(text)
	if err != nil {
		return err
	}
	return WriteSSE(w, MarkerText, string(bytes))
}

func WriteReference(w io.Writer, ref models.Reference) error {
	return WriteSSE(w, MarkerReference, ref)
}

func WriteError(w io.Writer, code int, msg string) error {
	return WriteSSE(w, MarkerError, models.ErrorPayload{Code: code, Msg: msg})
}

func WriteDone(w io.Writer) error {
	return WriteSSE(w, MarkerDone, "{}")
}

// WriteData 写出不带类型标记的记录，兼容旧版只有 data 行的流
func WriteData(w io.Writer, data interface{}) error {
	return WriteSSE(w, "", data)
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
