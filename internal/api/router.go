// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	"github.com/Corphon/ChatNovelMCP/internal/di"
	"github.com/Corphon/ChatNovelMCP/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 只从容器获取服务，不创建新实例
	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM网关未正确初始化")
	}
	novelService, ok := container.Get("novel").(*services.NovelService)
	if !ok {
		return nil, fmt.Errorf("叙事服务未正确初始化")
	}
	chatService, ok := container.Get("chat").(*services.ChatService)
	if !ok {
		return nil, fmt.Errorf("消息服务未正确初始化")
	}
	ideaService, ok := container.Get("idea").(*services.IdeaService)
	if !ok {
		return nil, fmt.Errorf("创意服务未正确初始化")
	}
	voteService, ok := container.Get("vote").(*services.VoteService)
	if !ok {
		return nil, fmt.Errorf("投票服务未正确初始化")
	}
	characterService, ok := container.Get("character").(*services.CharacterService)
	if !ok {
		return nil, fmt.Errorf("角色服务未正确初始化")
	}
	knowledgeService, ok := container.Get("knowledge").(*services.KnowledgeService)
	if !ok {
		return nil, fmt.Errorf("知识库服务未正确初始化")
	}
	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}
	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话注册表未正确初始化")
	}

	hub := NewHub()
	handler := NewHandler(
		llmService,
		novelService,
		chatService,
		ideaService,
		voteService,
		characterService,
		knowledgeService,
		exportService,
		sessionService,
		hub,
	)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/api/status", handler.Status)
	r.GET("/api/settings/llm", handler.GetLLMSettings)
	r.PUT("/api/settings/llm", handler.UpdateLLMSettings)
	r.GET("/ws/:session_id", hub.HandleWS)

	session := r.Group("/api/sessions/:session_id")
	{
		session.POST("/novel", handler.InitNovel)
		session.GET("/novel", handler.GetNovel)
		session.DELETE("/novel", handler.ResetNovel)
		session.GET("/outline", handler.GetOutline)
		session.POST("/collecting", handler.SetCollecting)
		session.POST("/force-ending", handler.SetForceEnding)
		session.POST("/settings", handler.AddCustomSetting)

		session.POST("/messages", handler.AppendMessage)
		session.POST("/chapters", handler.AddChapter)
		session.POST("/chapters/generate", handler.GenerateChapter)
		session.POST("/chapters/:number/rewrite", handler.RewriteChapter)
		session.POST("/chapters/:number/revise", handler.ReviseChapter)

		session.POST("/scenes", handler.GenerateScene)
		session.POST("/scenes/:scene_id/revise", handler.ReviseScene)
		session.GET("/latest-scene", handler.LatestScene)

		session.POST("/ideas", handler.SubmitIdea)
		session.GET("/ideas", handler.ListIdeas)
		session.POST("/ideas/:idea_id/force", handler.ForceIdeaStatus)

		session.GET("/votes", handler.ListOpenVotes)
		session.POST("/votes/:vote_id/ballots", handler.CastBallot)
		session.POST("/votes/:vote_id/close", handler.CloseVote)

		session.GET("/characters", handler.ListCharacters)
		session.POST("/characters/:name/lock", handler.ToggleCharacterLock)
		session.PUT("/characters/:name/description", handler.UpdateCharacterDescription)

		session.PUT("/worldviews/:name", handler.SetWorldview)
		session.POST("/worldviews/:name/refine", handler.RefineWorldview)
		session.PUT("/styles/:name", handler.SetStyle)

		session.GET("/export", handler.ExportDocument)
		session.POST("/export/text", handler.ExportText)
	}

	return r, nil
}

// corsMiddleware 跨域支持
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
