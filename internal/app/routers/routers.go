package routers

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"ima-agent/internal/app/controllers"
	v1 "ima-agent/internal/app/controllers/v1"
	"ima-agent/internal/app/services"
	"ima-agent/pkg/config"
)

var apiOnce sync.Once
var g *gin.Engine

// SetUp 使用 services.Init 装配好的客户端注册路由
func SetUp() *gin.Engine {
	apiOnce.Do(func() {
		var dumps v1.DumpReader
		if services.Dumps != nil {
			dumps = services.Dumps
		}
		g = New(v1.NewImaController(services.ImaClient, services.Store, dumps))
	})

	return g
}

func New(controller *v1.ImaController) *gin.Engine {
	gin.SetMode(ginMode(config.GetRunMode()))
	e := gin.New()
	e.Use(gin.Logger(), gin.Recovery(), corsMiddleware())

	mainGroup := e.Group("/ima")
	mainGroup.GET("/health", controllers.Health)
	mainGroup.POST("/ask", controller.Ask)
	mainGroup.GET("/dumps/:trace_id", controller.RawDumps)

	tokenGroup := mainGroup.Group("/token")
	{
		tokenGroup.GET("/status", controller.TokenStatus)
		tokenGroup.POST("/refresh", controller.RefreshToken)
	}
	return e
}

func ginMode(runMode string) string {
	switch {
	case strings.Contains(runMode, "dev"), runMode == gin.DebugMode:
		return gin.DebugMode
	case runMode == gin.TestMode:
		return gin.TestMode
	}
	return gin.ReleaseMode
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Origin")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}
