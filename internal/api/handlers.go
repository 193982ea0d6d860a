// internal/api/handlers.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/llm"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/services"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

// APIResponse 统一的响应包装
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"error_code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler API处理器
type Handler struct {
	LLM        *services.LLMService
	Novel      *services.NovelService
	Chat       *services.ChatService
	Ideas      *services.IdeaService
	Votes      *services.VoteService
	Characters *services.CharacterService
	Knowledge  *services.KnowledgeService
	Export     *services.ExportService
	Sessions   *services.SessionService
	Hub        *Hub

	logger *utils.Logger
}

// NewHandler 创建API处理器
func NewHandler(
	llm *services.LLMService,
	novel *services.NovelService,
	chat *services.ChatService,
	ideas *services.IdeaService,
	votes *services.VoteService,
	characters *services.CharacterService,
	knowledge *services.KnowledgeService,
	export *services.ExportService,
	sessions *services.SessionService,
	hub *Hub,
) *Handler {
	return &Handler{
		LLM:        llm,
		Novel:      novel,
		Chat:       chat,
		Ideas:      ideas,
		Votes:      votes,
		Characters: characters,
		Knowledge:  knowledge,
		Export:     export,
		Sessions:   sessions,
		Hub:        hub,
		logger:     utils.GetLogger(),
	}
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Timestamp: time.Now()})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data, Timestamp: time.Now()})
}

// respondError 按错误分类映射HTTP状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := ""

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch appErr.Type {
		case apperrors.ErrorTypeValidation, apperrors.ErrorTypeInvalidOption:
			status = http.StatusBadRequest
		case apperrors.ErrorTypeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrorTypeVoteClosed, apperrors.ErrorTypeStaleState:
			status = http.StatusConflict
		case apperrors.ErrorTypeTimeout:
			status = http.StatusGatewayTimeout
		case apperrors.ErrorTypeBackend, apperrors.ErrorTypeEmptyGeneration, apperrors.ErrorTypeUnparsable:
			status = http.StatusBadGateway
		}
	}

	c.JSON(status, APIResponse{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: code,
		Timestamp: time.Now(),
	})
}

// lockSession 获取会话写锁；一个会话同一时刻最多一个在途写操作
func (h *Handler) lockSession(sessionID string) func() {
	handle := h.Sessions.Acquire(sessionID)
	handle.Mu.Lock()
	return handle.Mu.Unlock
}

// ---------------------------------------------------------------
// 小说生命周期
// ---------------------------------------------------------------

// InitNovel POST /api/sessions/:session_id/novel
func (h *Handler) InitNovel(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Title        string `json:"title"`
		Requirements string `json:"requirements"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	state, err := h.Novel.Init(sessionID, req.Title, req.Requirements)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, state)
}

// GetNovel GET /api/sessions/:session_id/novel
func (h *Handler) GetNovel(c *gin.Context) {
	sessionID := c.Param("session_id")
	state := h.Novel.LoadState(sessionID)
	if state == nil {
		respondError(c, apperrors.NewNotFoundError("会话尚未初始化小说", nil))
		return
	}
	respondOK(c, state)
}

// ResetNovel DELETE /api/sessions/:session_id/novel
func (h *Handler) ResetNovel(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	if err := h.Novel.Reset(sessionID); err != nil {
		respondError(c, err)
		return
	}
	h.Sessions.Remove(sessionID)
	respondOK(c, gin.H{"reset": true})
}

// GetOutline GET /api/sessions/:session_id/outline
func (h *Handler) GetOutline(c *gin.Context) {
	outline, err := h.Novel.Outline(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"outline": outline})
}

// SetCollecting POST /api/sessions/:session_id/collecting
func (h *Handler) SetCollecting(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Collecting bool `json:"collecting"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	if err := h.Chat.SetCollecting(sessionID, req.Collecting); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"collecting": req.Collecting})
}

// SetForceEnding POST /api/sessions/:session_id/force-ending
func (h *Handler) SetForceEnding(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	if err := h.Chat.SetForceEnding(sessionID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"force_ending": true})
}

// AddCustomSetting POST /api/sessions/:session_id/settings
func (h *Handler) AddCustomSetting(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Author  string `json:"author"`
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	if err := h.Novel.AddCustomSetting(sessionID, req.Author, req.Content); err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"added": true})
}

// ---------------------------------------------------------------
// 消息缓冲与章节合成
// ---------------------------------------------------------------

// AppendMessage POST /api/sessions/:session_id/messages
func (h *Handler) AppendMessage(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		SenderName string `json:"sender_name" binding:"required"`
		SenderID   string `json:"sender_id"`
		Content    string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	result, err := h.Chat.AppendMessage(c.Request.Context(), sessionID, models.ChatMessage{
		SenderName: req.SenderName,
		SenderID:   req.SenderID,
		Content:    req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Chapter != nil {
		h.Hub.Broadcast(sessionID, EventChapterGenerated, result.Chapter)
	}
	respondOK(c, result)
}

// GenerateChapter POST /api/sessions/:session_id/chapters/generate
func (h *Handler) GenerateChapter(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	chapter, err := h.Chat.GenerateChapter(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.Hub.Broadcast(sessionID, EventChapterGenerated, chapter)
	respondCreated(c, chapter)
}

// RewriteChapter POST /api/sessions/:session_id/chapters/:number/rewrite
func (h *Handler) RewriteChapter(c *gin.Context) {
	sessionID := c.Param("session_id")
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("无效的章节号", err))
		return
	}

	var req struct {
		Instructions string `json:"instructions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	chapter, err := h.Chat.RewriteChapter(c.Request.Context(), sessionID, number, req.Instructions)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, chapter)
}

// ReviseChapter POST /api/sessions/:session_id/chapters/:number/revise
func (h *Handler) ReviseChapter(c *gin.Context) {
	sessionID := c.Param("session_id")
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		respondError(c, apperrors.NewValidationError("无效的章节号", err))
		return
	}

	var req struct {
		Feedback string `json:"feedback" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	result, err := h.Novel.ReviseChapterWithFeedback(c.Request.Context(), sessionID, number, req.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"chapter": result.Chapter}
	if result.PartitionWarning != "" {
		response["partition_warning"] = result.PartitionWarning
	}
	respondOK(c, response)
}

// ---------------------------------------------------------------
// 场景
// ---------------------------------------------------------------

// AddChapter POST /api/sessions/:session_id/chapters
func (h *Handler) AddChapter(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	chapter, err := h.Novel.AddChapter(sessionID, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, chapter)
}

// GenerateScene POST /api/sessions/:session_id/scenes
func (h *Handler) GenerateScene(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		ChapterNumber int      `json:"chapter_number"`
		Outline       string   `json:"outline" binding:"required"`
		Characters    []string `json:"characters"`
		Location      string   `json:"location"`
		MaxWordCount  int      `json:"max_word_count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	scene, err := h.Novel.GenerateScene(c.Request.Context(), sessionID, services.SceneRequest{
		ChapterNumber: req.ChapterNumber,
		Outline:       req.Outline,
		Characters:    req.Characters,
		Location:      req.Location,
		MaxWordCount:  req.MaxWordCount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, scene)
}

// LatestScene GET /api/sessions/:session_id/latest-scene
func (h *Handler) LatestScene(c *gin.Context) {
	scene, err := h.Novel.LatestScene(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, scene)
}

// ReviseScene POST /api/sessions/:session_id/scenes/:scene_id/revise
func (h *Handler) ReviseScene(c *gin.Context) {
	sessionID := c.Param("session_id")
	sceneID := c.Param("scene_id")

	defer h.lockSession(sessionID)()

	scene, err := h.Novel.ReviseScene(c.Request.Context(), sessionID, sceneID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.Hub.Broadcast(sessionID, EventSceneRevised, gin.H{"scene_id": scene.ID, "version": scene.Version})
	respondOK(c, scene)
}

// ---------------------------------------------------------------
// 创意治理
// ---------------------------------------------------------------

// SubmitIdea POST /api/sessions/:session_id/ideas
// 完整治理流程：提交 → 多评委打分 → 阈值比较 → 冲突检测 → 必要时发起投票
func (h *Handler) SubmitIdea(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Author   string `json:"author" binding:"required"`
		AuthorID string `json:"author_id"`
		Content  string `json:"content" binding:"required"`
		Type     string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	idea, err := h.Ideas.Submit(sessionID, req.Author, req.AuthorID, req.Content, req.Type)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	cfg := config.GetCurrentConfig()

	scoreCtx := h.buildScoreContext(sessionID)
	idea, err = h.Ideas.Score(ctx, sessionID, idea.ID, scoreCtx)
	if err != nil {
		respondError(c, err)
		return
	}

	threshold := float64(cfg.ScoreThreshold)
	if idea.WeightedAvg < threshold {
		idea, err = h.Ideas.Resolve(sessionID, idea.ID, threshold)
		if err != nil {
			respondError(c, err)
			return
		}
		h.Hub.Broadcast(sessionID, EventIdeaResolved, idea)
		respondOK(c, idea)
		return
	}

	report, err := h.Ideas.CheckConflict(ctx, sessionID, idea.ID, scoreCtx.WorldviewSummary, scoreCtx.ExistingIdeas)
	if err != nil {
		respondError(c, err)
		return
	}

	if report.HasConflict {
		duration := time.Duration(cfg.VoteDurationMinutes) * time.Minute
		vote, err := h.Ideas.CreateConflictVote(sessionID, idea.ID, report, duration)
		if err != nil {
			respondError(c, err)
			return
		}
		h.Hub.Broadcast(sessionID, EventVoteOpened, vote)
		respondOK(c, gin.H{"idea": idea, "vote": vote})
		return
	}

	idea, err = h.Ideas.Resolve(sessionID, idea.ID, threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Hub.Broadcast(sessionID, EventIdeaResolved, idea)
	respondOK(c, idea)
}

func (h *Handler) buildScoreContext(sessionID string) services.ScoreContext {
	scoreCtx := services.ScoreContext{}

	if state := h.Novel.LoadState(sessionID); state != nil {
		scoreCtx.NovelTitle = state.Title
		scoreCtx.NovelSynopsis = state.GlobalSummary
	}

	sceneCtx := h.Knowledge.BuildSceneContext(sessionID, nil)
	scoreCtx.WorldviewSummary = sceneCtx.WorldviewSummary

	var ideaLines string
	for _, idea := range h.Ideas.List(sessionID) {
		if idea.Status == models.IdeaStatusApproved {
			ideaLines += fmt.Sprintf("- [%s] %s\n", idea.Type, utils.TruncateText(idea.Content, 100))
		}
	}
	scoreCtx.ExistingIdeas = ideaLines

	return scoreCtx
}

// ListIdeas GET /api/sessions/:session_id/ideas
func (h *Handler) ListIdeas(c *gin.Context) {
	respondOK(c, h.Ideas.List(c.Param("session_id")))
}

// ForceIdeaStatus POST /api/sessions/:session_id/ideas/:idea_id/force
func (h *Handler) ForceIdeaStatus(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	idea, err := h.Ideas.ForceSetStatus(sessionID, c.Param("idea_id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Hub.Broadcast(sessionID, EventIdeaResolved, idea)
	respondOK(c, idea)
}

// ---------------------------------------------------------------
// 投票
// ---------------------------------------------------------------

// ListOpenVotes GET /api/sessions/:session_id/votes
func (h *Handler) ListOpenVotes(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	// 到期检查是 pull 式的：访问时先结清到期投票
	resolved, err := h.Ideas.ResolveExpiredVotes(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, idea := range resolved {
		h.Hub.Broadcast(sessionID, EventIdeaResolved, idea)
	}

	respondOK(c, h.Votes.ListOpen(sessionID))
}

// CastBallot POST /api/sessions/:session_id/votes/:vote_id/ballots
func (h *Handler) CastBallot(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		UserID    string `json:"user_id" binding:"required"`
		OptionKey string `json:"option_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	changed, err := h.Votes.CastBallot(sessionID, c.Param("vote_id"), req.UserID, req.OptionKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"changed": changed})
}

// CloseVote POST /api/sessions/:session_id/votes/:vote_id/close
func (h *Handler) CloseVote(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	vote, err := h.Votes.TallyAndClose(sessionID, c.Param("vote_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.Hub.Broadcast(sessionID, EventVoteClosed, vote)

	idea, err := h.Ideas.ApplyVoteResult(sessionID, vote)
	if err != nil {
		// 投票未关联创意时只返回投票结果
		respondOK(c, gin.H{"vote": vote})
		return
	}
	h.Hub.Broadcast(sessionID, EventIdeaResolved, idea)
	respondOK(c, gin.H{"vote": vote, "idea": idea})
}

// ---------------------------------------------------------------
// 角色
// ---------------------------------------------------------------

// ListCharacters GET /api/sessions/:session_id/characters
func (h *Handler) ListCharacters(c *gin.Context) {
	characters, err := h.Characters.List(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, characters)
}

// ToggleCharacterLock POST /api/sessions/:session_id/characters/:name/lock
func (h *Handler) ToggleCharacterLock(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	character, locked, err := h.Characters.ToggleLock(sessionID, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"character": character, "locked": locked})
}

// UpdateCharacterDescription PUT /api/sessions/:session_id/characters/:name/description
func (h *Handler) UpdateCharacterDescription(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	character, err := h.Characters.UpdateDescription(sessionID, c.Param("name"), req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, character)
}

// ---------------------------------------------------------------
// 知识库
// ---------------------------------------------------------------

// SetWorldview PUT /api/sessions/:session_id/worldviews/:name
func (h *Handler) SetWorldview(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	worldview, err := h.Knowledge.SetWorldview(sessionID, c.Param("name"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, worldview)
}

// RefineWorldview POST /api/sessions/:session_id/worldviews/:name/refine
func (h *Handler) RefineWorldview(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	worldview, err := h.Knowledge.RefineWorldview(c.Request.Context(), sessionID, c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, worldview)
}

// SetStyle PUT /api/sessions/:session_id/styles/:name
func (h *Handler) SetStyle(c *gin.Context) {
	sessionID := c.Param("session_id")
	var req struct {
		Guidance string   `json:"guidance"`
		Examples []string `json:"examples"`
		Activate bool     `json:"activate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}

	defer h.lockSession(sessionID)()

	style, err := h.Knowledge.SetStyle(sessionID, c.Param("name"), req.Guidance, req.Examples)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Activate {
		if err := h.Knowledge.ActivateStyle(sessionID, style.Name); err != nil {
			respondError(c, err)
			return
		}
	}
	respondOK(c, style)
}

// ---------------------------------------------------------------
// 导出与状态
// ---------------------------------------------------------------

// ExportDocument GET /api/sessions/:session_id/export
func (h *Handler) ExportDocument(c *gin.Context) {
	doc, err := h.Export.BuildDocument(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, doc)
}

// ExportText POST /api/sessions/:session_id/export/text
func (h *Handler) ExportText(c *gin.Context) {
	sessionID := c.Param("session_id")

	defer h.lockSession(sessionID)()

	path, err := h.Export.ExportText(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"path": path})
}

// GetLLMSettings GET /api/settings/llm
func (h *Handler) GetLLMSettings(c *gin.Context) {
	available := make(map[string][]string)
	for _, name := range llm.ListProviders() {
		available[name] = llm.GetSupportedModelsForProvider(name)
	}
	respondOK(c, gin.H{
		"provider":    h.LLM.GetProviderName(),
		"ready":       h.LLM.IsReady(),
		"ready_state": h.LLM.GetReadyState(),
		"available":   available,
	})
}

// UpdateLLMSettings PUT /api/settings/llm
// 先持久化配置，再热切换网关的默认提供商
func (h *Handler) UpdateLLMSettings(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("请求格式错误", err))
		return
	}
	if req.Config == nil {
		req.Config = map[string]string{}
	}

	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		respondError(c, apperrors.NewValidationError("保存配置失败", err))
		return
	}
	if err := h.LLM.UpdateProvider(req.Provider, req.Config); err != nil {
		respondError(c, apperrors.NewValidationError("切换提供商失败", err))
		return
	}

	h.logger.Infof("LLM提供商已切换为 %s", req.Provider)
	respondOK(c, gin.H{
		"provider":    h.LLM.GetProviderName(),
		"ready":       h.LLM.IsReady(),
		"ready_state": h.LLM.GetReadyState(),
	})
}

// Status GET /api/status
func (h *Handler) Status(c *gin.Context) {
	ready := h.LLM.IsReady()
	respondOK(c, gin.H{
		"llm_ready":       ready,
		"llm_state":       h.LLM.GetReadyState(),
		"provider":        h.LLM.GetProviderName(),
		"active_sessions": h.Sessions.ActiveCount(),
		"ws_clients":      h.Hub.ClientCount(),
	})
}
