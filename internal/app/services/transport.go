package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
	"ima-agent/pkg/util"
)

const errorBodyLimit = 64 * 1024

// Transport 发送一次问答请求，返回流式响应体
type Transport interface {
	Send(ctx context.Context, params models.AskParams, creds models.Credentials) (io.ReadCloser, error)
}

// SessionInitializer 在未指定 session 时为本次提问创建会话
type SessionInitializer interface {
	InitSession(ctx context.Context, params models.AskParams, creds models.Credentials) (string, error)
}

type HTTPTransport struct {
	client  *req.Client
	baseURL string
}

// NewReqClient 创建共享的 HTTP 客户端，timeout 限制单次尝试（包括读取流）
func NewReqClient(timeout time.Duration) *req.Client {
	return req.C().
		SetTimeout(timeout).
		SetCommonHeaders(util.BrowserHeaders).
		SetCookieJar(nil)
}

func NewHTTPTransport(client *req.Client, baseURL string) *HTTPTransport {
	return &HTTPTransport{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *HTTPTransport) Send(ctx context.Context, params models.AskParams, creds models.Credentials) (io.ReadCloser, error) {
	body := models.AskRequest{
		SessionID:       params.SessionID,
		RobotType:       params.RobotType,
		SceneType:       params.SceneType,
		KnowledgeBaseID: params.KnowledgeBaseID,
		Question:        params.Question,
		QuestionType:    util.QuestionType,
		ClientID:        creds.ClientID,
		CommandInfo: models.CommandInfo{
			Type:            util.CommandTypeQA,
			KnowledgeQaInfo: models.KnowledgeQaInfo{Tags: []string{}, KnowledgeIDs: []string{}},
		},
		ModelInfo: models.ModelInfo{ModelType: params.ModelType},
		DeviceInfo: models.DeviceInfo{
			Uskey:              util.RandomUskey(),
			UskeyBusInfosInput: fmt.Sprintf("%s_%d", creds.GUID(), time.Now().Unix()),
		},
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetHeader("accept", "text/event-stream").
		SetHeader("content-type", "application/json").
		SetBodyJsonMarshal(body).
		DisableAutoReadResponse().
		Post(t.baseURL + util.AskPath)
	if err != nil {
		if resp != nil && resp.Response != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, code.New(code.ErrNetwork, err)
	}
	return streamBody(resp.Response)
}

func (t *HTTPTransport) InitSession(ctx context.Context, params models.AskParams, creds models.Credentials) (string, error) {
	body := models.InitSessionRequest{
		EnvInfo:    models.EnvInfo{RobotType: params.RobotType},
		RelatedURL: params.KnowledgeBaseID,
		SceneType:  params.SceneType,
		MsgsLimit:  util.SessionMsgsLimit,
		KnowledgeBaseInfoWithFolder: models.KnowledgeBaseInfoWithFolder{
			KnowledgeBaseID: params.KnowledgeBaseID,
			FolderIDs:       []string{},
		},
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(authHeaders(creds)).
		SetHeader("accept", "application/json").
		SetHeader("content-type", "application/json").
		SetBodyJsonMarshal(body).
		Post(t.baseURL + util.InitSessionPath)
	if err != nil {
		return "", code.New(code.ErrNetwork, err)
	}
	raw := resp.Bytes()
	if err := statusError(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var out models.InitSessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", code.Newf(code.ErrNetwork, "decode init_session response: %v", err)
	}
	if out.Code != 0 || out.SessionID == "" {
		return "", code.ClassifyRemote(out.Code, "session initialization failed: "+out.Msg)
	}
	return out.SessionID, nil
}

func authHeaders(creds models.Credentials) map[string]string {
	h := map[string]string{
		"x-ima-cookie": creds.CookieHeader(),
		"x-ima-bkn":    creds.Bkn,
	}
	if creds.Token != "" {
		h["authorization"] = "Bearer " + creds.Token
	}
	if creds.Cookies != "" {
		h["cookie"] = creds.Cookies
	}
	return h
}

// streamBody 校验状态码与内容类型，成功时把响应体交给调用方关闭
func streamBody(resp *http.Response) (io.ReadCloser, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, raw)
	}

	if strings.Contains(resp.Header.Get("content-type"), "application/json") {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		resp.Body.Close()
		if err != nil {
			return nil, code.New(code.ErrNetwork, err)
		}
		var remote models.RemoteError
		if json.Unmarshal(raw, &remote) == nil && remote.Code != 0 {
			return nil, code.ClassifyRemote(remote.Code, remote.Msg)
		}
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return resp.Body, nil
}

func statusError(status int, raw []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var remote models.RemoteError
	_ = json.Unmarshal(raw, &remote)
	msg := remote.Msg
	if msg == "" {
		msg = util.Preview(string(raw), 200)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden || code.IsLoginExpired(remote.Code, msg) {
		return code.Newf(code.ErrAuthentication, "HTTP %d: %s", status, msg)
	}
	return code.Newf(code.ErrNetwork, "HTTP %d: %s", status, msg)
}
