// internal/services/novel_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

const novelFileName = "novel.json"

// 场景摘要与全局摘要的长度上限（按 rune 计）
const sceneSummaryLimit = 200

// NovelService 叙事合成管线：场景生成、三轮修正、滚动摘要。
type NovelService struct {
	storage    *storage.FileStorage
	llm        *LLMService
	knowledge  *KnowledgeService
	characters *CharacterService
	logger     *utils.Logger
}

// NewNovelService 创建叙事服务
func NewNovelService(fs *storage.FileStorage, llm *LLMService, knowledge *KnowledgeService, characters *CharacterService) *NovelService {
	return &NovelService{
		storage:    fs,
		llm:        llm,
		knowledge:  knowledge,
		characters: characters,
		logger:     utils.GetLogger(),
	}
}

// LoadState 读取会话的叙事状态；不存在时返回 nil
func (s *NovelService) LoadState(sessionID string) *models.NovelState {
	state := &models.NovelState{}
	if !s.storage.LoadJSONOrDefault(sessionDir(sessionID), novelFileName, state) {
		return nil
	}
	if state.Chapters == nil {
		state.Chapters = []*models.Chapter{}
	}
	return state
}

// SaveState 保存叙事状态
func (s *NovelService) SaveState(sessionID string, state *models.NovelState) error {
	state.SchemaVersion = models.NovelStateSchemaVersion
	state.UpdatedAt = time.Now()
	if err := s.storage.SaveJSONFile(sessionDir(sessionID), novelFileName, state); err != nil {
		return fmt.Errorf("保存叙事状态失败: %w", err)
	}
	return nil
}

// Init 初始化会话的叙事状态（已存在时报错）
func (s *NovelService) Init(sessionID, title, requirements string) (*models.NovelState, error) {
	if existing := s.LoadState(sessionID); existing != nil {
		return nil, apperrors.NewValidationError("会话已有进行中的小说，请先重置", nil)
	}

	state := models.NewNovelState(requirements)
	state.Title = title
	if err := s.SaveState(sessionID, state); err != nil {
		return nil, err
	}

	s.logger.Infof("会话 %s 小说初始化：《%s》", sessionID, title)
	return state, nil
}

// Reset 删除会话的全部叙事数据
func (s *NovelService) Reset(sessionID string) error {
	if !s.storage.DirExists(sessionDir(sessionID)) {
		return nil
	}
	if err := s.storage.DeleteDir(sessionDir(sessionID)); err != nil {
		return err
	}
	s.logger.Infof("会话 %s 小说数据已重置", sessionID)
	return nil
}

// mustState 读取状态，不存在时返回 NotFound
func (s *NovelService) mustState(sessionID string) (*models.NovelState, error) {
	state := s.LoadState(sessionID)
	if state == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}
	return state, nil
}

// SceneRequest 场景生成参数
type SceneRequest struct {
	ChapterNumber int // 0 表示最新章节
	Outline       string
	Characters    []string
	Location      string
	MaxWordCount  int
}

// GenerateScene 生成新场景并追加到章节。
// 生成是硬依赖：空结果返回 ErrorTypeEmptyGeneration，状态不落盘。
// 摘要与角色抽取是软依赖：失败降级，不影响场景落盘。
func (s *NovelService) GenerateScene(ctx context.Context, sessionID string, req SceneRequest) (*models.Scene, error) {
	state, err := s.mustState(sessionID)
	if err != nil {
		return nil, err
	}
	if len(state.Chapters) == 0 {
		return nil, apperrors.NewValidationError("尚无章节，请先创建章节", nil)
	}

	chapter := state.Chapters[len(state.Chapters)-1]
	if req.ChapterNumber > 0 {
		chapter = state.FindChapter(req.ChapterNumber)
		if chapter == nil {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %d", req.ChapterNumber), nil)
		}
	}

	sceneCtx := s.knowledge.BuildSceneContext(sessionID, req.Characters)

	prevSummary := "这是本章的第一个场景。"
	if len(chapter.Scenes) > 0 {
		last := chapter.Scenes[len(chapter.Scenes)-1]
		prevSummary = orDefault(last.Summary, "无摘要")
	}

	maxWords := req.MaxWordCount
	if maxWords <= 0 {
		maxWords = config.GetCurrentConfig().MaxWordCount
	}

	prompt := fmt.Sprintf(generateScenePrompt,
		orDefault(state.Title, "未命名"), chapter.Title,
		orDefault(state.GlobalSummary, "暂无"),
		prevSummary,
		sceneCtx.CharactersInfo,
		orDefault(req.Location, "未指定"),
		sceneCtx.WorldviewSummary,
		sceneCtx.StyleName, sceneCtx.StyleGuidance, sceneCtx.StyleSamples,
		req.Outline,
		maxWords,
	)

	content, err := s.llm.Invoke(ctx, InvokeRequest{
		Role:    config.RoleWriting,
		Prompt:  prompt,
		Timeout: 180 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	summary := s.summarizeScene(ctx, content)

	scene := &models.Scene{
		ID:      utils.GenerateID("scene"),
		Title:   utils.TruncateRunes(req.Outline, 30),
		Content: content,
		Summary: summary,
		Version: 1,
		Status:  models.SceneStatusDraft,
	}

	chapter.Scenes = append(chapter.Scenes, scene)
	s.updateGlobalSummary(ctx, state, summary)

	if err := s.SaveState(sessionID, state); err != nil {
		return nil, err
	}
	s.logger.Infof("场景生成完成: %s（第%d章）", scene.ID, chapter.Number)

	// 自动抽取新角色写入登记表（软依赖）
	if err := s.extractAndMergeCharacters(ctx, sessionID, content); err != nil {
		s.logger.Warnf("自动抽取新角色失败: %v", err)
	}

	return scene, nil
}

// AddChapter 追加新章节，章节号连续递增
func (s *NovelService) AddChapter(sessionID, title string) (*models.Chapter, error) {
	state, err := s.mustState(sessionID)
	if err != nil {
		return nil, err
	}

	chapter := &models.Chapter{
		Number:    state.NextChapterNumber(),
		Title:     orDefault(title, fmt.Sprintf("第%d章", state.NextChapterNumber())),
		Scenes:    []*models.Scene{},
		CreatedAt: time.Now(),
	}
	state.Chapters = append(state.Chapters, chapter)

	if err := s.SaveState(sessionID, state); err != nil {
		return nil, err
	}
	return chapter, nil
}

// summarizeScene 生成场景摘要。软依赖：失败退化为朴素截断。
func (s *NovelService) summarizeScene(ctx context.Context, content string) string {
	summary, err := s.llm.Invoke(ctx, InvokeRequest{
		Role:   config.RoleSummary,
		Prompt: fmt.Sprintf(summarizeScenePrompt, utils.TruncateRunes(content, 3000)),
	})
	if err != nil {
		s.logger.Warnf("场景摘要生成失败，退化为截断: %v", err)
		return utils.TruncateText(content, 100)
	}
	return utils.TruncateRunes(summary, sceneSummaryLimit)
}

// updateGlobalSummary 用新情节摘要替换滚动全局摘要。
// 软依赖：失败保留旧摘要。有损压缩：随篇幅增长舍弃早期细节。
func (s *NovelService) updateGlobalSummary(ctx context.Context, state *models.NovelState, newSummary string) {
	updated, err := s.llm.Invoke(ctx, InvokeRequest{
		Role: config.RoleSummary,
		Prompt: fmt.Sprintf(summarizeGlobalPrompt,
			orDefault(state.GlobalSummary, "暂无"), newSummary),
	})
	if err != nil {
		s.logger.Warnf("全局摘要更新失败，保留旧摘要: %v", err)
		return
	}
	state.GlobalSummary = utils.TruncateRunes(updated, config.GetCurrentConfig().GlobalSummaryLimit)
}

// extractedCharacters 角色抽取的结构化输出
type extractedCharacters struct {
	Characters []struct {
		CanonicalName string   `json:"canonical_name"`
		Description   string   `json:"description"`
		Aliases       []string `json:"aliases"`
	} `json:"characters"`
}

func (s *NovelService) extractAndMergeCharacters(ctx context.Context, sessionID, sceneContent string) error {
	existing, err := s.characters.List(sessionID)
	if err != nil {
		return err
	}

	var names []string
	for _, c := range existing {
		names = append(names, c.CanonicalName)
		names = append(names, c.Aliases...)
	}
	existingText := "暂无角色"
	if len(names) > 0 {
		existingText = strings.Join(names, ", ")
	}

	var extracted extractedCharacters
	err = s.llm.InvokeStructured(ctx, InvokeRequest{
		Role:   config.RoleWriting,
		Prompt: fmt.Sprintf(extractCharactersPrompt, existingText, utils.TruncateRunes(sceneContent, 3000)),
	}, &extracted)
	if err != nil {
		return err
	}
	if len(extracted.Characters) == 0 {
		return nil
	}

	drafts := make([]models.CharacterDraft, 0, len(extracted.Characters))
	for _, c := range extracted.Characters {
		drafts = append(drafts, models.CharacterDraft{
			CanonicalName: c.CanonicalName,
			Description:   c.Description,
			Aliases:       c.Aliases,
		})
	}
	return s.characters.Merge(sessionID, drafts)
}

// critiqueReport 第一轮审读的结构化输出
type critiqueReport struct {
	Suggestions []struct {
		Type string `json:"type"`
		Fix  string `json:"fix"`
	} `json:"suggestions"`
	OverallComment string `json:"overall_comment"`
}

// ReviseScene 三轮修正：审读 → 修改 → 审校。
// 第一轮输出不可解析时包装为通用建议继续；第二轮失败是硬失败；
// 第三轮失败保留第二轮结果。成功后原内容入修订历史，版本号+1。
func (s *NovelService) ReviseScene(ctx context.Context, sessionID, sceneID string) (*models.Scene, error) {
	state, err := s.mustState(sessionID)
	if err != nil {
		return nil, err
	}

	var scene *models.Scene
	for _, ch := range state.Chapters {
		for _, sc := range ch.Scenes {
			if sc.ID == sceneID {
				scene = sc
				break
			}
		}
		if scene != nil {
			break
		}
	}
	if scene == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("场景不存在: %s", sceneID), nil)
	}

	original := scene.Content
	sceneCtx := s.knowledge.BuildSceneContext(sessionID, nil)

	// —— 第一轮：审读 ——
	s.logger.Infof("修正 Pass 1：审读 %s", sceneID)
	pass1Text, err := s.llm.Invoke(ctx, InvokeRequest{
		Role: config.RoleRevision,
		Prompt: fmt.Sprintf(reviseScenePass1Prompt,
			orDefault(state.Title, "未命名"), sceneCtx.StyleName,
			orDefault(state.GlobalSummary, "暂无"),
			original, sceneCtx.CharactersInfo),
		Timeout: 120 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var critique critiqueReport
	if jsonText, ok := ExtractJSON(pass1Text); ok {
		if jsonErr := json.Unmarshal([]byte(jsonText), &critique); jsonErr != nil {
			critique = critiqueReport{}
		}
	}
	if len(critique.Suggestions) == 0 {
		// 不可解析的审读意见包装为单条通用建议
		critique.Suggestions = append(critique.Suggestions, struct {
			Type string `json:"type"`
			Fix  string `json:"fix"`
		}{Type: "通用", Fix: utils.TruncateRunes(pass1Text, 500)})
	}

	critiqueJSON, _ := json.MarshalIndent(critique, "", "  ")

	// —— 第二轮：执行修改（硬依赖）——
	s.logger.Infof("修正 Pass 2：执行修改 %s", sceneID)
	revised, err := s.llm.Invoke(ctx, InvokeRequest{
		Role: config.RoleRevision,
		Prompt: fmt.Sprintf(reviseScenePass2Prompt,
			original, utils.TruncateRunes(string(critiqueJSON), 3000),
			sceneCtx.StyleName, sceneCtx.StyleGuidance, sceneCtx.StyleSamples),
		Timeout: 180 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// —— 第三轮：审校（软依赖，失败保留第二轮结果）——
	s.logger.Infof("修正 Pass 3：最终审校 %s", sceneID)
	final, err := s.llm.Invoke(ctx, InvokeRequest{
		Role: config.RoleRevision,
		Prompt: fmt.Sprintf(reviseScenePass3Prompt,
			revised, utils.TruncateRunes(original, 2000),
			sceneCtx.WorldviewSummary, sceneCtx.CharactersInfo),
		Timeout: 180 * time.Second,
	})
	if err != nil {
		s.logger.Warnf("修正 Pass 3 失败，保留第二轮结果: %v", err)
		final = revised
	}

	scene.Revisions = append(scene.Revisions, models.SceneRevision{
		Version:   scene.Version,
		Content:   original,
		RevisedAt: time.Now(),
	})
	scene.Version++
	scene.Content = strings.TrimSpace(final)
	scene.Status = models.SceneStatusRevised

	scene.Summary = s.summarizeScene(ctx, scene.Content)
	s.updateGlobalSummary(ctx, state, scene.Summary)

	if err := s.SaveState(sessionID, state); err != nil {
		return nil, err
	}

	s.logger.Infof("场景修正完成: %s v%d", sceneID, scene.Version)
	return scene, nil
}

// ChapterRevisionResult 用户介入修正的结果
type ChapterRevisionResult struct {
	Chapter *models.Chapter
	// PartitionWarning 非空表示整章内容无法按场景定界拆分，
	// 全部内容回填进了第一个场景，其余场景未改动
	PartitionWarning string
}

// ReviseChapterWithFeedback 根据读者反馈修正整章。
// 多场景章节按【场景 N】定界拼接送出，并要求模型原样保留定界行；
// 返回内容用严格解析器拆回各场景，拆分失败走文档化的降级路径。
func (s *NovelService) ReviseChapterWithFeedback(ctx context.Context, sessionID string, chapterNumber int, feedback string) (*ChapterRevisionResult, error) {
	state, err := s.mustState(sessionID)
	if err != nil {
		return nil, err
	}

	chapter := state.FindChapter(chapterNumber)
	if chapter == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %d", chapterNumber), nil)
	}
	if len(chapter.Scenes) == 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("第%d章没有可修正的内容", chapterNumber), nil)
	}

	var parts []string
	for i, sc := range chapter.Scenes {
		parts = append(parts, fmt.Sprintf(sceneDelimiterFormat, i+1))
		parts = append(parts, sc.Content, "")
	}
	chapterContent := strings.Join(parts, "\n")

	sceneCtx := s.knowledge.BuildSceneContext(sessionID, nil)

	revised, err := s.llm.Invoke(ctx, InvokeRequest{
		Role: config.RoleRevision,
		Prompt: fmt.Sprintf(userGuidedRevisionPrompt,
			orDefault(state.Title, "未命名"), chapterNumber, chapter.Title,
			sceneCtx.StyleName, sceneCtx.WorldviewSummary, sceneCtx.CharactersInfo,
			len(chapter.Scenes), utils.TruncateRunes(chapterContent, 5000),
			utils.TruncateRunes(feedback, 3000)),
		Timeout: 180 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	result := &ChapterRevisionResult{Chapter: chapter}

	applyRevision := func(sc *models.Scene, content string) {
		sc.Revisions = append(sc.Revisions, models.SceneRevision{
			Version:   sc.Version,
			Content:   sc.Content,
			RevisedAt: time.Now(),
		})
		sc.Version++
		sc.Content = content
		sc.Status = models.SceneStatusRevised
	}

	if len(chapter.Scenes) == 1 {
		applyRevision(chapter.Scenes[0], stripSceneDelimiters(revised))
	} else {
		sections, parseErr := PartitionScenes(revised, len(chapter.Scenes))
		if parseErr != nil {
			// 降级：整章内容回填第一个场景，其余场景不动
			s.logger.Warnf("第%d章修正结果无法按场景拆分: %v", chapterNumber, parseErr)
			result.PartitionWarning = parseErr.Error()
			applyRevision(chapter.Scenes[0], strings.TrimSpace(revised))
		} else {
			for i, sc := range chapter.Scenes {
				applyRevision(sc, sections[i])
			}
		}
	}

	chapter.Summary = s.summarizeScene(ctx, utils.TruncateRunes(revised, 3000))
	s.updateGlobalSummary(ctx, state, chapter.Summary)

	if err := s.SaveState(sessionID, state); err != nil {
		return nil, err
	}

	s.logger.Infof("用户介入修正完成: 第%d章", chapterNumber)
	return result, nil
}

// PartitionScenes 按【场景 N】定界行把整章文本严格拆分为 expected 个场景。
// 定界行必须独占一行且编号从1连续递增；任何偏差都返回不可拆分错误，
// 不做猜测性的内容归并。
func PartitionScenes(text string, expected int) ([]string, error) {
	lines := strings.Split(text, "\n")

	var sections []string
	var current []string
	seen := 0

	flush := func() {
		if seen > 0 {
			sections = append(sections, strings.TrimSpace(strings.Join(current, "\n")))
		}
		current = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == fmt.Sprintf(sceneDelimiterFormat, seen+1) {
			flush()
			seen++
			continue
		}
		current = append(current, line)
	}
	flush()

	if seen != expected {
		return nil, apperrors.NewUnparsableError(
			fmt.Sprintf("场景定界不匹配：期望%d个场景，识别到%d个", expected, seen), nil)
	}
	for i, section := range sections {
		if section == "" {
			return nil, apperrors.NewUnparsableError(
				fmt.Sprintf("场景 %d 的修正内容为空", i+1), nil)
		}
	}
	return sections, nil
}

// stripSceneDelimiters 去掉单场景响应中模型可能照抄的定界行
func stripSceneDelimiters(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "【场景") && strings.HasSuffix(trimmed, "】") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// AddCustomSetting 记录群友自定义设定，并入后续合成上下文
func (s *NovelService) AddCustomSetting(sessionID, author, content string) error {
	if content == "" {
		return apperrors.NewValidationError("自定义设定内容不能为空", nil)
	}
	state, err := s.mustState(sessionID)
	if err != nil {
		return err
	}
	state.CustomSettings = append(state.CustomSettings, models.CustomSetting{
		Author:    author,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return s.SaveState(sessionID, state)
}

// LatestScene 返回最新写入的场景
func (s *NovelService) LatestScene(sessionID string) (*models.Scene, error) {
	state, err := s.mustState(sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(state.Chapters) - 1; i >= 0; i-- {
		scenes := state.Chapters[i].Scenes
		if len(scenes) > 0 {
			return scenes[len(scenes)-1], nil
		}
	}
	return nil, apperrors.NewNotFoundError("尚无任何场景", nil)
}

// Outline 返回全书大纲文本
func (s *NovelService) Outline(sessionID string) (string, error) {
	state, err := s.mustState(sessionID)
	if err != nil {
		return "", err
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("《%s》", orDefault(state.Title, "未命名")))
	for _, ch := range state.Chapters {
		lines = append(lines, fmt.Sprintf("第%d章 %s", ch.Number, ch.Title))
		for _, sc := range ch.Scenes {
			icon := "□"
			if sc.Status != models.SceneStatusDraft {
				icon = "■"
			}
			lines = append(lines, fmt.Sprintf("    %s %s", icon, orDefault(sc.Title, "未命名场景")))
		}
	}
	return strings.Join(lines, "\n"), nil
}
