// internal/services/export_service.go
package services

import (
	"fmt"
	"strings"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

// ExportService 导出协作者的边界：产出只读的 NovelDocument 与纯文本渲染。
// 电子书/PDF 等文件产物由外部消费方基于 NovelDocument 生成。
type ExportService struct {
	storage    *storage.FileStorage
	novel      *NovelService
	characters *CharacterService
	logger     *utils.Logger
}

// NewExportService 创建导出服务
func NewExportService(fs *storage.FileStorage, novel *NovelService, characters *CharacterService) *ExportService {
	return &ExportService{
		storage:    fs,
		novel:      novel,
		characters: characters,
		logger:     utils.GetLogger(),
	}
}

// BuildDocument 汇总会话状态为只读导出文档
func (s *ExportService) BuildDocument(sessionID string) (*models.NovelDocument, error) {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}

	characters, err := s.characters.List(sessionID)
	if err != nil {
		return nil, err
	}

	doc := &models.NovelDocument{
		Title:        orDefault(state.Title, "未命名"),
		Synopsis:     state.GlobalSummary,
		Contributors: state.Contributors,
		Characters:   characters,
		Chapters:     make([]models.ExportChapter, 0, len(state.Chapters)),
	}

	for _, ch := range state.Chapters {
		exportCh := models.ExportChapter{
			Number: ch.Number,
			Title:  ch.Title,
			Scenes: make([]models.ExportScene, 0, len(ch.Scenes)),
		}
		for _, sc := range ch.Scenes {
			exportCh.Scenes = append(exportCh.Scenes, models.ExportScene{
				Title:   sc.Title,
				Content: sc.Content,
			})
		}
		doc.Chapters = append(doc.Chapters, exportCh)
	}

	return doc, nil
}

// RenderText 把导出文档渲染为纯文本
func (s *ExportService) RenderText(doc *models.NovelDocument) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("《%s》", doc.Title), "")

	if len(doc.Characters) > 0 {
		lines = append(lines, "【出场人物】")
		for _, c := range doc.Characters {
			if c.DisplayName != "" && c.DisplayName != c.CanonicalName {
				lines = append(lines, fmt.Sprintf("  %s（%s）：%s", c.CanonicalName, c.DisplayName, c.Description))
			} else {
				lines = append(lines, fmt.Sprintf("  %s：%s", c.CanonicalName, c.Description))
			}
		}
		lines = append(lines, "")
	}

	if doc.Synopsis != "" {
		lines = append(lines, fmt.Sprintf("【简介】%s", doc.Synopsis), "")
	}

	for _, ch := range doc.Chapters {
		lines = append(lines, fmt.Sprintf("第%d章 %s", ch.Number, ch.Title))
		lines = append(lines, strings.Repeat("=", 40), "")
		for _, sc := range ch.Scenes {
			if sc.Title != "" {
				lines = append(lines, fmt.Sprintf("—— %s ——", sc.Title), "")
			}
			lines = append(lines, sc.Content, "")
		}
		lines = append(lines, "")
	}

	if len(doc.Contributors) > 0 {
		lines = append(lines, fmt.Sprintf("—— 由 %s 协作完成 ——", strings.Join(doc.Contributors, "、")))
	}

	return strings.Join(lines, "\n")
}

// ExportText 渲染全书并写入会话的导出目录，返回相对路径
func (s *ExportService) ExportText(sessionID string) (string, error) {
	doc, err := s.BuildDocument(sessionID)
	if err != nil {
		return "", err
	}

	filename := "novel.txt"
	dirPath := sessionDir(sessionID) + "/exports"
	if err := s.storage.SaveTextFile(dirPath, filename, []byte(s.RenderText(doc))); err != nil {
		return "", err
	}

	path := dirPath + "/" + filename
	s.logger.Infof("会话 %s 导出完成: %s", sessionID, path)
	return path, nil
}

// ExportChapterText 渲染单章文本
func (s *ExportService) ExportChapterText(sessionID string, chapterNumber int) (string, error) {
	state := s.novel.LoadState(sessionID)
	if state == nil {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 尚未初始化小说", sessionID), nil)
	}

	chapter := state.FindChapter(chapterNumber)
	if chapter == nil {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("章节不存在: %d", chapterNumber), nil)
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("第%d章 %s", chapter.Number, chapter.Title))
	lines = append(lines, strings.Repeat("=", 40), "")
	for _, sc := range chapter.Scenes {
		if sc.Title != "" {
			lines = append(lines, fmt.Sprintf("—— %s ——", sc.Title), "")
		}
		lines = append(lines, sc.Content, "")
	}
	return strings.Join(lines, "\n"), nil
}
