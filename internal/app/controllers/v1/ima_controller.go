package v1

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"ima-agent/internal/app/controllers"
	"ima-agent/internal/app/models"
	"ima-agent/internal/app/services"
	"ima-agent/internal/pkg/code"
	"ima-agent/pkg/util"
)

type Asker interface {
	AskWithState(ctx context.Context, params models.AskParams) (*models.Result, *models.AttemptState, error)
}

type TokenStore interface {
	Get() models.Credentials
	Refresh(ctx context.Context, stale models.Credentials) (models.Credentials, error)
}

type DumpReader interface {
	ListByTrace(traceID string) ([]models.RawDump, error)
}

type ImaController struct {
	client Asker
	store  TokenStore
	dumps  DumpReader
}

func NewImaController(client Asker, store TokenStore, dumps DumpReader) *ImaController {
	return &ImaController{client: client, store: store, dumps: dumps}
}

// Ask 提问并返回整理后的答案与引用
func (c *ImaController) Ask(ctx *gin.Context) {
	var body models.AskBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		controllers.ResponseWithErr(ctx, 400, code.InvalidParams, code.MsgInvalidParams, err.Error(), nil)
		return
	}

	res, st, err := c.client.AskWithState(ctx.Request.Context(), models.AskParams{
		Question:  body.Question,
		SessionID: body.SessionID,
	})
	if errors.Is(err, services.ErrEmptyQuestion) {
		controllers.ResponseWithErr(ctx, 400, code.InvalidParams, code.MsgInvalidParams, err.Error(), nil)
		return
	}

	reply := models.AskReply{}
	if st != nil {
		reply.TraceID = st.TraceID
		reply.Attempts = st.Attempt
	}
	if err != nil {
		controllers.ResponseError(ctx, err, reply)
		return
	}
	reply.Answer = util.TidyText(res.Answer)
	reply.References = res.References
	controllers.Response(ctx, code.Success, code.MsgSuccess, reply)
}

// TokenStatus 返回凭证状态，不包含任何密钥
func (c *ImaController) TokenStatus(ctx *gin.Context) {
	controllers.Response(ctx, code.Success, code.MsgSuccess, tokenStatus(c.store.Get()))
}

// RefreshToken 立即刷新 token
func (c *ImaController) RefreshToken(ctx *gin.Context) {
	creds, err := c.store.Refresh(ctx.Request.Context(), c.store.Get())
	if err != nil {
		log.Errorf("manual token refresh failed: %v", err)
		controllers.ResponseError(ctx, err, tokenStatus(creds))
		return
	}
	controllers.Response(ctx, code.Success, code.MsgSuccess, tokenStatus(creds))
}

// RawDumps 列出一次提问保存的原始响应元数据
func (c *ImaController) RawDumps(ctx *gin.Context) {
	if c.dumps == nil {
		controllers.ResponseWithErr(ctx, 404, code.InvalidParams, "raw dump storage disabled", "", nil)
		return
	}
	dumps, err := c.dumps.ListByTrace(ctx.Param("trace_id"))
	if err != nil {
		controllers.ResponseWithErr(ctx, 500, code.InternalError, "query raw dumps failed", err.Error(), nil)
		return
	}
	controllers.Response(ctx, code.Success, code.MsgSuccess, dumps)
}

func tokenStatus(creds models.Credentials) models.TokenStatus {
	st := models.TokenStatus{
		HasToken:   creds.Token != "",
		CanRefresh: creds.CanRefresh(),
		Version:    creds.Version,
		UserID:     creds.UserID,
	}
	if exp := creds.ExpiresAt(); !exp.IsZero() {
		st.ExpiresAt = exp.Format(time.RFC3339)
	}
	return st
}
