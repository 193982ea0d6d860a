// internal/services/chat_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

const messageFileName = "messages.json"

// 章节生成的素材截断长度（按 rune 计）
const chatLogLimit = 6000

// ChatService 缓冲触发引擎：消息累积、质量门、过滤、阈值触发章节合成。
type ChatService struct {
	storage    *storage.FileStorage
	llm        *LLMService
	novel      *NovelService
	characters *CharacterService
	ideas      *IdeaService
	logger     *utils.Logger
}

// NewChatService 创建缓冲触发引擎
func NewChatService(fs *storage.FileStorage, llm *LLMService, novel *NovelService, characters *CharacterService, ideas *IdeaService) *ChatService {
	return &ChatService{
		storage:    fs,
		llm:        llm,
		novel:      novel,
		characters: characters,
		ideas:      ideas,
		logger:     utils.GetLogger(),
	}
}

func (s *ChatService) loadBuffer(sessionID string) *models.MessageBuffer {
	buffer := models.NewMessageBuffer()
	s.storage.LoadJSONOrDefault(sessionDir(sessionID), messageFileName, buffer)
	if buffer.Messages == nil {
		buffer.Messages = []models.ChatMessage{}
	}
	return buffer
}

// saveBuffer 整体保存缓冲：要么全部落盘要么保持旧文档
func (s *ChatService) saveBuffer(sessionID string, buffer *models.MessageBuffer) error {
	buffer.SchemaVersion = models.MessageBufferSchemaVersion
	if err := s.storage.SaveJSONFile(sessionDir(sessionID), messageFileName, buffer); err != nil {
		return fmt.Errorf("保存消息缓冲失败: %w", err)
	}
	return nil
}

// MessageCount 当前缓冲消息数
func (s *ChatService) MessageCount(sessionID string) int {
	return s.loadBuffer(sessionID).Count()
}

// AppendResult 一次消息追加的结果
type AppendResult struct {
	Count     int
	Triggered bool
	// Chapter 非 nil 表示本次追加触发并成功合成了新章节
	Chapter *models.Chapter
	// GateReason 记录质量门判定不足时的理由
	GateReason string
}

// AppendMessage 追加消息。计数到达阈值的正整数倍时尝试合成章节：
// 先过质量门（fail-open），不足且启用过滤时做子集过滤（绝不清空缓冲），
// 合成成功后缓冲随章节追加一并清空。
func (s *ChatService) AppendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) (*AppendResult, error) {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}
	if state.Status != models.NovelStatusCollecting {
		return nil, apperrors.NewValidationError("小说已停止收集消息", nil)
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	buffer := s.loadBuffer(sessionID)
	buffer.Messages = append(buffer.Messages, msg)
	if err := s.saveBuffer(sessionID, buffer); err != nil {
		return nil, err
	}

	state.AddContributor(msg.SenderName)
	if err := s.novel.SaveState(sessionID, state); err != nil {
		return nil, err
	}

	result := &AppendResult{Count: buffer.Count()}

	threshold := config.GetCurrentConfig().ChatTriggerCount
	if threshold <= 0 || buffer.Count() == 0 || buffer.Count()%threshold != 0 {
		return result, nil
	}
	result.Triggered = true

	chapter, gateReason, err := s.trySynthesize(ctx, sessionID)
	if err != nil {
		return result, err
	}
	result.Chapter = chapter
	result.GateReason = gateReason
	return result, nil
}

// trySynthesize 过质量门后合成章节。
// 质量不足时返回 (nil, 理由, nil)：缓冲保留（或保留过滤后的非空子集）。
func (s *ChatService) trySynthesize(ctx context.Context, sessionID string) (*models.Chapter, string, error) {
	buffer := s.loadBuffer(sessionID)
	if buffer.Count() == 0 {
		return nil, "", nil
	}

	sufficient, reason := s.evaluateQuality(ctx, buffer.Messages)
	if !sufficient {
		s.logger.Infof("会话 %s 素材未过质量门: %s", sessionID, reason)
		if config.GetCurrentConfig().FilterEnabled {
			if err := s.filterBuffer(ctx, sessionID, buffer); err != nil {
				s.logger.Warnf("消息过滤失败，保留原缓冲: %v", err)
			}
		}
		return nil, reason, nil
	}

	chapter, err := s.GenerateChapter(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	return chapter, "", nil
}

// qualityVerdict 质量门的结构化输出
type qualityVerdict struct {
	Sufficient bool   `json:"sufficient"`
	Ratio      string `json:"ratio"`
	Reason     string `json:"reason"`
}

// evaluateQuality 评估缓冲内容是否足以支撑一章。
// fail-open：后端失败或解析失败视为充分，避免无限期停滞。
func (s *ChatService) evaluateQuality(ctx context.Context, messages []models.ChatMessage) (bool, string) {
	cfg := config.GetCurrentConfig()

	var verdict qualityVerdict
	err := s.llm.InvokeStructured(ctx, InvokeRequest{
		Role: config.RoleQualityGate,
		Prompt: fmt.Sprintf(evaluateQualityPrompt,
			cfg.QualityThreshold, utils.TruncateRunes(formatChatLog(messages), chatLogLimit)),
	}, &verdict)
	if err != nil {
		s.logger.Warnf("质量门评估失败，按充分处理: %v", err)
		return true, ""
	}

	reason := verdict.Reason
	if verdict.Ratio != "" {
		reason = verdict.Ratio + "：" + verdict.Reason
	}
	return verdict.Sufficient, reason
}

// filterVerdict 过滤调用的结构化输出
type filterVerdict struct {
	KeepIndices []int `json:"keep_indices"`
}

// filterBuffer 选出值得保留的消息子集。
// 过滤结果为空时整体放弃过滤，绝不清空非空缓冲。
func (s *ChatService) filterBuffer(ctx context.Context, sessionID string, buffer *models.MessageBuffer) error {
	var numbered []string
	for i, m := range buffer.Messages {
		numbered = append(numbered, fmt.Sprintf("[%d] %s: %s", i, m.SenderName, m.Content))
	}

	var verdict filterVerdict
	err := s.llm.InvokeStructured(ctx, InvokeRequest{
		Role:   config.RoleFilter,
		Prompt: fmt.Sprintf(filterMessagesPrompt, utils.TruncateRunes(strings.Join(numbered, "\n"), chatLogLimit)),
	}, &verdict)
	if err != nil {
		return err
	}

	keep := make(map[int]bool, len(verdict.KeepIndices))
	for _, idx := range verdict.KeepIndices {
		if idx >= 0 && idx < len(buffer.Messages) {
			keep[idx] = true
		}
	}

	if len(keep) == 0 {
		s.logger.Info("过滤结果为空，保留原缓冲", nil)
		return nil
	}

	var kept []models.ChatMessage
	for i, m := range buffer.Messages {
		if keep[i] {
			kept = append(kept, m)
		}
	}

	before := buffer.Count()
	buffer.Messages = kept
	if err := s.saveBuffer(sessionID, buffer); err != nil {
		return err
	}
	s.logger.Infof("消息过滤: %d → %d", before, len(kept))
	return nil
}

// chapterResponse 章节生成的结构化输出
type chapterResponse struct {
	ChapterTitle     string `json:"chapter_title"`
	Content          string `json:"content"`
	Summary          string `json:"summary"`
	UpdatedSummary   string `json:"updated_summary"`
	CharacterUpdates []struct {
		CanonicalName string `json:"canonical_name"`
		Description   string `json:"description"`
	} `json:"character_updates"`
}

// GenerateChapter 把消息缓冲合成为新章节。
// 生成是硬依赖；成功后缓冲随章节追加一并清空；
// force_ending 标记被本次调用恰好消费一次。
func (s *ChatService) GenerateChapter(ctx context.Context, sessionID string) (*models.Chapter, error) {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}

	buffer := s.loadBuffer(sessionID)
	if buffer.Count() == 0 {
		return nil, apperrors.NewValidationError("消息缓冲为空，无素材可合成", nil)
	}

	forceEnding := state.ForceEnding
	chapterNumber := state.NextChapterNumber()
	cfg := config.GetCurrentConfig()

	// 映射新的参与者为小说角色（软依赖）
	newNames := s.findNewParticipants(sessionID, buffer.Messages)
	if len(newNames) > 0 {
		if err := s.mapNewCharacters(ctx, sessionID, newNames, state.Requirements); err != nil {
			s.logger.Warnf("新参与者角色映射失败: %v", err)
		}
	}

	endingInstruction := ""
	if forceEnding {
		endingInstruction = forceEndingInstruction
	}

	prompt := fmt.Sprintf(generateChapterPrompt,
		orDefault(state.Title, "群聊物语"),
		chapterNumber,
		s.requirementsWithIdeas(sessionID, state),
		orDefault(state.GlobalSummary, "故事尚未开始"),
		s.previousChaptersText(state),
		s.charactersText(sessionID),
		orDefault(strings.Join(newNames, ", "), "无"),
		utils.TruncateRunes(formatChatLog(buffer.Messages), chatLogLimit),
		endingInstruction,
		cfg.MaxWordCount,
	)

	response, err := s.llm.Invoke(ctx, InvokeRequest{
		Role:    config.RoleWriting,
		Prompt:  prompt,
		Timeout: 240 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var parsed chapterResponse
	structured := false
	if jsonText, ok := ExtractJSON(response); ok {
		if jsonErr := json.Unmarshal([]byte(jsonText), &parsed); jsonErr == nil && parsed.Content != "" {
			structured = true
		}
	}

	title := fmt.Sprintf("第%d章", chapterNumber)
	content := strings.TrimSpace(response)
	summary := utils.TruncateRunes(content, 200)
	if structured {
		if parsed.ChapterTitle != "" {
			title = stripChapterPrefix(parsed.ChapterTitle)
		}
		content = parsed.Content
		if parsed.Summary != "" {
			summary = utils.TruncateRunes(parsed.Summary, 200)
		}
	}

	chapter := &models.Chapter{
		Number:  chapterNumber,
		Title:   title,
		Summary: summary,
		Scenes: []*models.Scene{{
			ID:      utils.GenerateID("scene"),
			Content: content,
			Summary: summary,
			Version: 1,
			Status:  models.SceneStatusDraft,
		}},
		CreatedAt: time.Now(),
	}
	state.Chapters = append(state.Chapters, chapter)

	// 更新全局摘要
	if structured && parsed.UpdatedSummary != "" {
		state.GlobalSummary = utils.TruncateRunes(parsed.UpdatedSummary, cfg.GlobalSummaryLimit)
	} else {
		state.GlobalSummary = utils.TailRunes(state.GlobalSummary+" "+summary, cfg.GlobalSummaryLimit)
	}

	// 强制结局是一次性转换：成功生成后停止收集并清除标记
	if forceEnding {
		state.ForceEnding = false
		state.Status = models.NovelStatusStopped
	}

	if err := s.novel.SaveState(sessionID, state); err != nil {
		return nil, err
	}

	// 角色更新（锁定角色由合并逻辑自动跳过）
	if structured && len(parsed.CharacterUpdates) > 0 {
		drafts := make([]models.CharacterDraft, 0, len(parsed.CharacterUpdates))
		for _, cu := range parsed.CharacterUpdates {
			if cu.CanonicalName == "" {
				continue
			}
			drafts = append(drafts, models.CharacterDraft{
				CanonicalName: cu.CanonicalName,
				Description:   cu.Description,
			})
		}
		if err := s.characters.Merge(sessionID, drafts); err != nil {
			s.logger.Warnf("章节角色更新合并失败: %v", err)
		}
	}

	// 清空缓冲：与章节追加同属一次合成事务
	if err := s.saveBuffer(sessionID, models.NewMessageBuffer()); err != nil {
		return nil, err
	}

	if forceEnding {
		s.logger.Infof("会话 %s 强制结局完成，已停止收集", sessionID)
	}
	s.logger.Infof("第%d章生成完成：%s（%d字）", chapterNumber, chapter.Title, len([]rune(content)))
	return chapter, nil
}

// RewriteChapter 按用户指示重写既有章节。
// 重写结果整体替换章节正文（旧内容入第一个场景的修订历史）。
func (s *ChatService) RewriteChapter(ctx context.Context, sessionID string, chapterNumber int, instructions string) (*models.Chapter, error) {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}

	chapter := state.FindChapter(chapterNumber)
	if chapter == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %d", chapterNumber), nil)
	}
	if len(chapter.Scenes) == 0 {
		return nil, apperrors.NewStaleStateError(fmt.Sprintf("第%d章没有正文", chapterNumber))
	}

	cfg := config.GetCurrentConfig()

	var prevParts, nextParts []string
	for _, ch := range state.Chapters {
		line := fmt.Sprintf("第%d章「%s」：%s", ch.Number, ch.Title, orDefault(ch.Summary, "无摘要"))
		if ch.Number < chapterNumber {
			prevParts = append(prevParts, line)
		} else if ch.Number > chapterNumber {
			nextParts = append(nextParts, line)
		}
	}

	originalContent := chapterText(chapter)

	prompt := fmt.Sprintf(rewriteChapterPrompt,
		orDefault(state.Title, "群聊物语"),
		chapterNumber,
		orDefault(state.Requirements, "无特殊要求"),
		orDefault(state.GlobalSummary, "故事尚未开始"),
		orDefault(strings.Join(prevParts, "\n"), "这是第一章，没有前序章节。"),
		orDefault(strings.Join(nextParts, "\n"), "这是最新章节，没有后续章节。"),
		s.charactersText(sessionID),
		utils.TruncateRunes(originalContent, 4000),
		orDefault(instructions, "请保持原有风格，优化内容质量"),
		cfg.MaxWordCount,
	)

	response, err := s.llm.Invoke(ctx, InvokeRequest{
		Role:    config.RoleWriting,
		Prompt:  prompt,
		Timeout: 240 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var parsed chapterResponse
	content := strings.TrimSpace(response)
	summary := utils.TruncateRunes(content, 200)
	if jsonText, ok := ExtractJSON(response); ok {
		if jsonErr := json.Unmarshal([]byte(jsonText), &parsed); jsonErr == nil && parsed.Content != "" {
			content = parsed.Content
			if parsed.ChapterTitle != "" {
				chapter.Title = stripChapterPrefix(parsed.ChapterTitle)
			}
			if parsed.Summary != "" {
				summary = utils.TruncateRunes(parsed.Summary, 200)
			}
		}
	}

	// 重写产出的是整章正文，章节折叠为单场景；
	// 被并入场景的原文随整章旧文进入修订历史
	first := chapter.Scenes[0]
	first.Revisions = append(first.Revisions, models.SceneRevision{
		Version:   first.Version,
		Content:   strings.TrimSpace(originalContent),
		RevisedAt: time.Now(),
	})
	first.Version++
	first.Content = content
	first.Summary = summary
	first.Status = models.SceneStatusRevised
	first.Title = ""
	chapter.Scenes = chapter.Scenes[:1]
	chapter.Summary = summary

	if err := s.novel.SaveState(sessionID, state); err != nil {
		return nil, err
	}

	s.logger.Infof("第%d章重写完成：%s（%d字）", chapterNumber, chapter.Title, len([]rune(content)))
	return chapter, nil
}

// SetForceEnding 设置一次性的强制结局标记
func (s *ChatService) SetForceEnding(sessionID string) error {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}
	if state.Status != models.NovelStatusCollecting {
		return apperrors.NewValidationError("小说已停止收集，无法设置强制结局", nil)
	}
	state.ForceEnding = true
	return s.novel.SaveState(sessionID, state)
}

// SetCollecting 切换消息收集开关
func (s *ChatService) SetCollecting(sessionID string, collecting bool) error {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}
	if collecting {
		state.Status = models.NovelStatusCollecting
	} else {
		state.Status = models.NovelStatusStopped
	}
	return s.novel.SaveState(sessionID, state)
}

// mappedCharacters 新参与者映射的结构化输出
type mappedCharacters struct {
	Characters []struct {
		DisplayName   string `json:"display_name"`
		CanonicalName string `json:"canonical_name"`
		Description   string `json:"description"`
	} `json:"characters"`
}

// mapNewCharacters 为新的群聊参与者设计小说角色
func (s *ChatService) mapNewCharacters(ctx context.Context, sessionID string, newNames []string, requirements string) error {
	existing, err := s.characters.List(sessionID)
	if err != nil {
		return err
	}

	existingInfo := "暂无已有角色"
	if len(existing) > 0 {
		var lines []string
		for _, c := range existing {
			lines = append(lines, fmt.Sprintf("- %s → %s：%s", c.DisplayName, c.CanonicalName, c.Description))
		}
		existingInfo = strings.Join(lines, "\n")
	}

	var mapped mappedCharacters
	err = s.llm.InvokeStructured(ctx, InvokeRequest{
		Role: config.RoleWriting,
		Prompt: fmt.Sprintf(mapCharactersPrompt,
			strings.Join(newNames, ", "), existingInfo, orDefault(requirements, "无特殊要求")),
	}, &mapped)
	if err != nil {
		return err
	}

	drafts := make([]models.CharacterDraft, 0, len(mapped.Characters))
	for _, c := range mapped.Characters {
		if c.CanonicalName == "" {
			continue
		}
		drafts = append(drafts, models.CharacterDraft{
			CanonicalName: c.CanonicalName,
			DisplayName:   c.DisplayName,
			Description:   c.Description,
		})
	}
	if len(drafts) == 0 {
		return nil
	}
	return s.characters.Merge(sessionID, drafts)
}

// findNewParticipants 找出尚无角色映射的发言者
func (s *ChatService) findNewParticipants(sessionID string, messages []models.ChatMessage) []string {
	existing, err := s.characters.List(sessionID)
	if err != nil {
		return nil
	}

	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.DisplayName] = true
		known[c.CanonicalName] = true
	}

	seen := make(map[string]bool)
	var newNames []string
	for _, m := range messages {
		if m.SenderName == "" || known[m.SenderName] || seen[m.SenderName] {
			continue
		}
		seen[m.SenderName] = true
		newNames = append(newNames, m.SenderName)
	}
	return newNames
}

// requirementsWithIdeas 创作要求 + 已采纳创意（通过的创意并入后续合成上下文）
func (s *ChatService) requirementsWithIdeas(sessionID string, state *models.NovelState) string {
	requirements := orDefault(state.Requirements, "无特殊要求")

	approved := s.ideas.loadList(sessionID).ApprovedIdeas()
	if len(approved) == 0 && len(state.CustomSettings) == 0 {
		return requirements
	}

	var parts []string
	parts = append(parts, requirements)
	if len(approved) > 0 {
		parts = append(parts, "\n已采纳的群友创意（必须体现在后续剧情中）：")
		for _, idea := range approved {
			parts = append(parts, fmt.Sprintf("- [%s] %s", idea.Type, utils.TruncateText(idea.Content, 200)))
		}
	}
	if len(state.CustomSettings) > 0 {
		parts = append(parts, "\n群友自定义设定：")
		for _, cs := range state.CustomSettings {
			parts = append(parts, fmt.Sprintf("- %s（%s）", utils.TruncateText(cs.Content, 200), cs.Author))
		}
	}
	return strings.Join(parts, "\n")
}

func (s *ChatService) previousChaptersText(state *models.NovelState) string {
	if len(state.Chapters) == 0 {
		return "这是第一章，没有前序章节。"
	}
	var lines []string
	for _, ch := range state.Chapters {
		lines = append(lines, fmt.Sprintf("第%d章「%s」：%s", ch.Number, ch.Title, orDefault(ch.Summary, "无摘要")))
	}
	return strings.Join(lines, "\n")
}

func (s *ChatService) charactersText(sessionID string) string {
	chars, err := s.characters.List(sessionID)
	if err != nil || len(chars) == 0 {
		return "暂无角色"
	}
	var lines []string
	for _, c := range chars {
		line := fmt.Sprintf("- %s → %s", orDefault(c.DisplayName, "?"), c.CanonicalName)
		if c.Description != "" {
			line += "：" + utils.TruncateText(c.Description, 120)
		}
		if c.Locked {
			line += "（设定已锁定）"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

var chapterPrefixRe = regexp.MustCompile(`^第\s*\d+\s*章[：:\s]*`)

// stripChapterPrefix 去除标题里自带的"第N章"前缀，避免与章节号重复拼接
func stripChapterPrefix(title string) string {
	return strings.TrimSpace(chapterPrefixRe.ReplaceAllString(title, ""))
}

// formatChatLog 把消息缓冲格式化为生成素材
func formatChatLog(messages []models.ChatMessage) string {
	var lines []string
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.SenderName, m.Content))
	}
	return strings.Join(lines, "\n")
}

// chapterText 拼接章节全部场景的正文
func chapterText(chapter *models.Chapter) string {
	var parts []string
	for _, sc := range chapter.Scenes {
		if sc.Title != "" {
			parts = append(parts, fmt.Sprintf("—— %s ——", sc.Title))
		}
		parts = append(parts, sc.Content, "")
	}
	return strings.Join(parts, "\n")
}
