package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ima-agent/internal/app/models"
	"ima-agent/internal/pkg/code"
)

func Response(c *gin.Context, code int, message string, data interface{}) {
	if nil == data {
		data = struct {
		}{}
	}
	resp := &models.RespValue{
		Code: code,
		Msg:  message,
		Data: data,
	}
	c.JSON(http.StatusOK, resp)
}

func ResponseWithErr(c *gin.Context, status int, code int, message string, err string, data interface{}) {
	if nil == data {
		data = struct {
		}{}
	}
	resp := &models.RespValue{
		Code: code,
		Msg:  message,
		Err:  err,
		Data: data,
	}
	c.JSON(status, resp)
}

// ResponseError 按错误分类返回响应码与 HTTP 状态
func ResponseError(c *gin.Context, err error, data interface{}) {
	msg := "request failed"
	if kind := code.KindOf(err); kind != nil {
		msg = kind.Error()
	}
	var e *code.Error
	if errors.As(err, &e) && e.Artifact != "" {
		c.Header("X-Raw-Response", e.Artifact)
	}
	ResponseWithErr(c, code.HTTPStatus(err), code.FromError(err), msg, err.Error(), data)
}

func Health(c *gin.Context) {
	Response(c, code.Success, code.MsgSuccess, gin.H{"status": "ok"})
}
