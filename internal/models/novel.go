// internal/models/novel.go
package models

import "time"

// 会话状态
const (
	NovelStatusCollecting = "collecting"
	NovelStatusStopped    = "stopped"
)

// Scene 状态
const (
	SceneStatusDraft   = "draft"
	SceneStatusRevised = "revised"
	SceneStatusFinal   = "final"
)

// SceneRevision 场景修订历史条目（只追加）
type SceneRevision struct {
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	RevisedAt time.Time `json:"revised_at"`
}

// Scene 场景
// 不变量: Version == len(Revisions)+1
type Scene struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	Content   string          `json:"content"`
	Summary   string          `json:"summary,omitempty"`
	Version   int             `json:"version"`
	Revisions []SceneRevision `json:"revisions,omitempty"`
	Status    string          `json:"status"`
}

// Chapter 章节；Number 从1开始连续递增
type Chapter struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Scenes    []*Scene  `json:"scenes"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomSetting 用户自定义设定条目
type CustomSetting struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NovelState 协作会话的叙事状态文档（会话为隔离单元）
type NovelState struct {
	SchemaVersion  int             `json:"schema_version"`
	Title          string          `json:"title,omitempty"`
	Requirements   string          `json:"requirements,omitempty"` // 题材/风格要求
	Status         string          `json:"status"`
	Chapters       []*Chapter      `json:"chapters"`
	GlobalSummary  string          `json:"global_summary,omitempty"` // 滚动全局摘要（有界）
	Contributors   []string        `json:"contributors,omitempty"`
	CustomSettings []CustomSetting `json:"custom_settings,omitempty"`
	ForceEnding    bool            `json:"force_ending"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NovelStateSchemaVersion 当前叙事状态文档格式版本
const NovelStateSchemaVersion = 1

// NewNovelState 创建新的叙事状态
func NewNovelState(requirements string) *NovelState {
	now := time.Now()
	return &NovelState{
		SchemaVersion: NovelStateSchemaVersion,
		Requirements:  requirements,
		Status:        NovelStatusCollecting,
		Chapters:      []*Chapter{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NextChapterNumber 返回下一个章节号（保证连续）
func (s *NovelState) NextChapterNumber() int {
	return len(s.Chapters) + 1
}

// FindChapter 按章节号查找
func (s *NovelState) FindChapter(number int) *Chapter {
	for _, ch := range s.Chapters {
		if ch.Number == number {
			return ch
		}
	}
	return nil
}

// AddContributor 记录贡献者（去重）
func (s *NovelState) AddContributor(name string) {
	if name == "" {
		return
	}
	for _, c := range s.Contributors {
		if c == name {
			return
		}
	}
	s.Contributors = append(s.Contributors, name)
}

// NovelDocument 导出协作者消费的只读文档形状
type NovelDocument struct {
	Title        string              `json:"title"`
	Synopsis     string              `json:"synopsis,omitempty"`
	Contributors []string            `json:"contributors,omitempty"`
	Characters   []*Character        `json:"characters,omitempty"`
	Chapters     []ExportChapter     `json:"chapters"`
}

// ExportChapter 导出用章节形状
type ExportChapter struct {
	Number int           `json:"number"`
	Title  string        `json:"title"`
	Scenes []ExportScene `json:"scenes"`
}

// ExportScene 导出用场景形状
type ExportScene struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}
