// internal/models/character.go
package models

import "time"

// Character 角色实体
// 身份解析顺序：外部ID匹配 → 规范名匹配 → 新实体
type Character struct {
	ID            string            `json:"id"`
	ExternalID    string            `json:"external_id,omitempty"` // 稳定外部身份（如群成员ID）
	CanonicalName string            `json:"canonical_name"`
	DisplayName   string            `json:"display_name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Aliases       []string          `json:"aliases,omitempty"`
	Locked        bool              `json:"locked"`
	Status        string            `json:"status,omitempty"` // 存活/死亡/失踪等叙事状态
	Relationships map[string]string `json:"relationships,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// CharacterDraft 自动抽取得到的角色候选（合并输入）
type CharacterDraft struct {
	ExternalID    string            `json:"external_id,omitempty"`
	CanonicalName string            `json:"canonical_name"`
	DisplayName   string            `json:"display_name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Aliases       []string          `json:"aliases,omitempty"`
	Status        string            `json:"status,omitempty"`
	Relationships map[string]string `json:"relationships,omitempty"`
}

// CharacterRegistry 一个会话的角色登记表文档
type CharacterRegistry struct {
	SchemaVersion int          `json:"schema_version"`
	Characters    []*Character `json:"characters"`
}

// CharacterRegistrySchemaVersion 当前角色文档格式版本
const CharacterRegistrySchemaVersion = 1

// NewCharacterRegistry 创建空的角色登记表
func NewCharacterRegistry() *CharacterRegistry {
	return &CharacterRegistry{
		SchemaVersion: CharacterRegistrySchemaVersion,
		Characters:    []*Character{},
	}
}
