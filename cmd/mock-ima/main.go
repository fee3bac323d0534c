package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ima-agent/internal/app/models"
	"ima-agent/pkg/util"
)

// mock-ima 在本地模拟问答、刷新与会话接口，用于联调和故障演练
type mockServer struct {
	truncateFirst int64
	expireFirst   int64
	untyped       bool
	token         atomic.Value
	asks          atomic.Int64
}

func main() {
	var (
		addr string
		m    mockServer
	)
	cmd := &cobra.Command{
		Use:   "mock-ima",
		Short: "Local IMA upstream emitting the streaming wire format",
		RunE: func(cmd *cobra.Command, args []string) error {
			m.token.Store("")
			log.Infof("mock-ima listening on %s", addr)
			return m.engine().Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	cmd.Flags().Int64Var(&m.truncateFirst, "truncate-first", 0, "truncate the first N answer streams")
	cmd.Flags().Int64Var(&m.expireFirst, "expire-first", 0, "reject the first N asks as login expired")
	cmd.Flags().BoolVar(&m.untyped, "untyped", false, "emit the legacy stream of data-only records")
	if err := cmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func (m *mockServer) engine() *gin.Engine {
	e := gin.Default()
	e.POST(util.AskPath, m.ask)
	e.POST(util.RefreshPath, m.refresh)
	e.POST(util.InitSessionPath, m.initSession)
	return e
}

func (m *mockServer) ask(c *gin.Context) {
	var req models.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.RemoteError{Code: 400, Msg: err.Error()})
		return
	}
	n := m.asks.Add(1)

	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	w := c.Writer

	if n <= m.expireFirst || !m.authorized(c) {
		m.writeError(w, 600001, "登录过期，请重新登录")
		return
	}

	answer := fmt.Sprintf("关于「%s」：\n\n这是来自知识库 %s 的模拟回答。", req.Question, req.KnowledgeBaseID)
	for _, chunk := range splitRunes(answer, 4) {
		m.writeText(w, chunk)
		time.Sleep(20 * time.Millisecond)
	}
	if n <= m.expireFirst+m.truncateFirst {
		return
	}
	ref := models.Reference{ID: "mock-1", Title: "模拟文档", Locator: "https://ima.qq.com/mock/1"}
	m.writeReference(w, ref)
	m.writeReference(w, ref)
	m.writeDone(w)
}

// 旧版流只有 data 行：文本为 {"content":...}，引用为 knowledgeBase 消息，结束为 [DONE]
func (m *mockServer) writeText(w io.Writer, text string) {
	if m.untyped {
		_ = util.WriteData(w, gin.H{"content": text})
		return
	}
	_ = util.WriteText(w, text)
}

func (m *mockServer) writeReference(w io.Writer, ref models.Reference) {
	if m.untyped {
		media := gin.H{"id": ref.ID, "title": ref.Title, "jump_url": ref.Locator}
		_ = util.WriteData(w, gin.H{"type": "knowledgeBase", "medias": []gin.H{media}})
		return
	}
	_ = util.WriteReference(w, ref)
}

func (m *mockServer) writeError(w io.Writer, code int, msg string) {
	if m.untyped {
		_ = util.WriteData(w, models.ErrorPayload{Code: code, Msg: msg})
		return
	}
	_ = util.WriteError(w, code, msg)
}

func (m *mockServer) writeDone(w io.Writer) {
	if m.untyped {
		_ = util.WriteData(w, "[DONE]")
		return
	}
	_ = util.WriteDone(w)
}

func (m *mockServer) authorized(c *gin.Context) bool {
	token := m.token.Load().(string)
	if token == "" {
		return true
	}
	return strings.Contains(c.GetHeader("x-ima-cookie"), "IMA-TOKEN="+token)
}

func (m *mockServer) refresh(c *gin.Context) {
	var req models.TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusOK, models.TokenRefreshResponse{Code: 600002, Msg: "invalid refresh token"})
		return
	}
	token := uuid.New().String()
	m.token.Store(token)
	c.JSON(http.StatusOK, models.TokenRefreshResponse{
		Token:          token,
		TokenValidTime: "7200",
		UserID:         req.UserID,
	})
}

func (m *mockServer) initSession(c *gin.Context) {
	c.JSON(http.StatusOK, models.InitSessionResponse{SessionID: uuid.New().String()})
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
