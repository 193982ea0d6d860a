// internal/models/knowledge.go
package models

import "time"

// Worldview 世界观设定
type Worldview struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Refined   bool      `json:"refined"` // 是否经过AI精炼
	UpdatedAt time.Time `json:"updated_at"`
}

// StyleGuide 文风指南及示例
type StyleGuide struct {
	Name      string    `json:"name"`
	Guidance  string    `json:"guidance"`
	Examples  []string  `json:"examples,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KnowledgeBase 一个会话的知识库文档（世界观 + 文风）
type KnowledgeBase struct {
	SchemaVersion int           `json:"schema_version"`
	Worldviews    []*Worldview  `json:"worldviews"`
	Styles        []*StyleGuide `json:"styles"`
	ActiveStyle   string        `json:"active_style,omitempty"`
}

// KnowledgeBaseSchemaVersion 当前知识库文档格式版本
const KnowledgeBaseSchemaVersion = 1

// NewKnowledgeBase 创建空知识库
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		SchemaVersion: KnowledgeBaseSchemaVersion,
		Worldviews:    []*Worldview{},
		Styles:        []*StyleGuide{},
	}
}

// FindWorldview 按名称查找世界观
func (k *KnowledgeBase) FindWorldview(name string) *Worldview {
	for _, w := range k.Worldviews {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// FindStyle 按名称查找文风
func (k *KnowledgeBase) FindStyle(name string) *StyleGuide {
	for _, s := range k.Styles {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// CurrentStyle 返回当前激活的文风；未设置时返回nil
func (k *KnowledgeBase) CurrentStyle() *StyleGuide {
	if k.ActiveStyle == "" {
		return nil
	}
	return k.FindStyle(k.ActiveStyle)
}
