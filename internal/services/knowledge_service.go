// internal/services/knowledge_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

const knowledgeFileName = "knowledge.json"

// KnowledgeService 会话知识库：世界观设定与文风指南。
type KnowledgeService struct {
	storage    *storage.FileStorage
	llm        *LLMService
	characters *CharacterService
	logger     *utils.Logger
}

// NewKnowledgeService 创建知识库服务
func NewKnowledgeService(fs *storage.FileStorage, llm *LLMService, characters *CharacterService) *KnowledgeService {
	return &KnowledgeService{
		storage:    fs,
		llm:        llm,
		characters: characters,
		logger:     utils.GetLogger(),
	}
}

func (s *KnowledgeService) load(sessionID string) *models.KnowledgeBase {
	kb := models.NewKnowledgeBase()
	s.storage.LoadJSONOrDefault(sessionDir(sessionID), knowledgeFileName, kb)
	if kb.Worldviews == nil {
		kb.Worldviews = []*models.Worldview{}
	}
	if kb.Styles == nil {
		kb.Styles = []*models.StyleGuide{}
	}
	return kb
}

func (s *KnowledgeService) save(sessionID string, kb *models.KnowledgeBase) error {
	kb.SchemaVersion = models.KnowledgeBaseSchemaVersion
	if err := s.storage.SaveJSONFile(sessionDir(sessionID), knowledgeFileName, kb); err != nil {
		return fmt.Errorf("保存知识库失败: %w", err)
	}
	return nil
}

// SetWorldview 新增或覆盖一条世界观设定
func (s *KnowledgeService) SetWorldview(sessionID, name, content string) (*models.Worldview, error) {
	if name == "" || content == "" {
		return nil, apperrors.NewValidationError("世界观名称和内容不能为空", nil)
	}

	kb := s.load(sessionID)
	worldview := kb.FindWorldview(name)
	if worldview == nil {
		worldview = &models.Worldview{Name: name}
		kb.Worldviews = append(kb.Worldviews, worldview)
	}
	worldview.Content = content
	worldview.Refined = false
	worldview.UpdatedAt = time.Now()

	if err := s.save(sessionID, kb); err != nil {
		return nil, err
	}
	return worldview, nil
}

// RefineWorldview 用 AI 精炼一条世界观设定。
// 失败时保留原始文本，不算错误。
func (s *KnowledgeService) RefineWorldview(ctx context.Context, sessionID, name string) (*models.Worldview, error) {
	kb := s.load(sessionID)
	worldview := kb.FindWorldview(name)
	if worldview == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("世界观不存在: %s", name), nil)
	}

	refined, err := s.llm.Invoke(ctx, InvokeRequest{
		Role:   config.RoleWorldview,
		Prompt: fmt.Sprintf(refineWorldviewPrompt, worldview.Content),
	})
	if err != nil {
		s.logger.Warnf("世界观 %s 精炼失败，保留原文: %v", name, err)
		return worldview, nil
	}

	worldview.Content = refined
	worldview.Refined = true
	worldview.UpdatedAt = time.Now()

	if err := s.save(sessionID, kb); err != nil {
		return nil, err
	}
	return worldview, nil
}

// SetStyle 新增或覆盖一条文风指南
func (s *KnowledgeService) SetStyle(sessionID, name, guidance string, examples []string) (*models.StyleGuide, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("文风名称不能为空", nil)
	}

	kb := s.load(sessionID)
	style := kb.FindStyle(name)
	if style == nil {
		style = &models.StyleGuide{Name: name}
		kb.Styles = append(kb.Styles, style)
	}
	style.Guidance = guidance
	style.Examples = examples
	style.UpdatedAt = time.Now()

	if err := s.save(sessionID, kb); err != nil {
		return nil, err
	}
	return style, nil
}

// ActivateStyle 切换当前激活的文风
func (s *KnowledgeService) ActivateStyle(sessionID, name string) error {
	kb := s.load(sessionID)
	if kb.FindStyle(name) == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("文风不存在: %s", name), nil)
	}
	kb.ActiveStyle = name
	return s.save(sessionID, kb)
}

// Get 返回会话的知识库
func (s *KnowledgeService) Get(sessionID string) *models.KnowledgeBase {
	return s.load(sessionID)
}

// SceneContext 写作时使用的知识库上下文
type SceneContext struct {
	WorldviewSummary string
	CharactersInfo   string
	StyleName        string
	StyleGuidance    string
	StyleSamples     string
}

// BuildSceneContext 汇总写作上下文：世界观摘要、角色简介、激活文风。
// involved 非空时只收入相关角色。
func (s *KnowledgeService) BuildSceneContext(sessionID string, involved []string) SceneContext {
	kb := s.load(sessionID)
	ctx := SceneContext{
		WorldviewSummary: "暂无",
		CharactersInfo:   "暂无角色",
		StyleName:        "默认",
		StyleGuidance:    "无特殊要求",
		StyleSamples:     "无参考样本",
	}

	if len(kb.Worldviews) > 0 {
		var parts []string
		for _, w := range kb.Worldviews {
			parts = append(parts, fmt.Sprintf("【%s】%s", w.Name, utils.TruncateText(w.Content, 500)))
		}
		ctx.WorldviewSummary = strings.Join(parts, "\n")
	}

	if chars, err := s.characters.List(sessionID); err == nil && len(chars) > 0 {
		involvedSet := make(map[string]bool, len(involved))
		for _, name := range involved {
			involvedSet[name] = true
		}

		var lines []string
		for _, c := range chars {
			if len(involvedSet) > 0 && !involvedSet[c.CanonicalName] && !involvedSet[c.DisplayName] {
				continue
			}
			line := fmt.Sprintf("- %s", c.CanonicalName)
			if c.DisplayName != "" && c.DisplayName != c.CanonicalName {
				line += fmt.Sprintf("（%s）", c.DisplayName)
			}
			if c.Description != "" {
				line += "：" + utils.TruncateText(c.Description, 120)
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			ctx.CharactersInfo = strings.Join(lines, "\n")
		}
	}

	if style := kb.CurrentStyle(); style != nil {
		ctx.StyleName = style.Name
		if style.Guidance != "" {
			ctx.StyleGuidance = style.Guidance
		}
		if len(style.Examples) > 0 {
			samples := style.Examples
			if len(samples) > 3 {
				samples = samples[:3]
			}
			ctx.StyleSamples = strings.Join(samples, "\n---\n")
		}
	}

	return ctx
}
