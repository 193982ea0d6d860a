// internal/services/character_service.go
package services

import (
	"fmt"
	"time"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/models"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

const characterFileName = "characters.json"

// CharacterService 角色登记表。
// 锁定角色对自动合并写入免疫；显式用户编辑绕过锁（产品决策，见 ToggleLock 注释）。
type CharacterService struct {
	storage *storage.FileStorage
	logger  *utils.Logger
}

// NewCharacterService 创建角色服务
func NewCharacterService(fs *storage.FileStorage) *CharacterService {
	return &CharacterService{
		storage: fs,
		logger:  utils.GetLogger(),
	}
}

// LoadRegistry 读取会话的角色登记表；不存在时返回空表
func (s *CharacterService) LoadRegistry(sessionID string) (*models.CharacterRegistry, error) {
	registry := models.NewCharacterRegistry()
	s.storage.LoadJSONOrDefault(sessionDir(sessionID), characterFileName, registry)
	if registry.Characters == nil {
		registry.Characters = []*models.Character{}
	}
	return registry, nil
}

// SaveRegistry 保存角色登记表
func (s *CharacterService) SaveRegistry(sessionID string, registry *models.CharacterRegistry) error {
	registry.SchemaVersion = models.CharacterRegistrySchemaVersion
	if err := s.storage.SaveJSONFile(sessionDir(sessionID), characterFileName, registry); err != nil {
		return fmt.Errorf("保存角色登记表失败: %w", err)
	}
	return nil
}

// resolve 身份解析：外部ID → 规范名/显示名 → 未命中
func resolve(registry *models.CharacterRegistry, externalID, name string) *models.Character {
	if externalID != "" {
		for _, c := range registry.Characters {
			if c.ExternalID == externalID {
				return c
			}
		}
	}
	if name == "" {
		return nil
	}
	for _, c := range registry.Characters {
		if c.CanonicalName == name || c.DisplayName == name {
			return c
		}
		for _, alias := range c.Aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

// Merge 合并自动抽取的角色候选。
// 已解析且锁定 → 整体跳过；已解析未锁定 → 仅覆盖非空字段；未解析 → 新增。
func (s *CharacterService) Merge(sessionID string, candidates []models.CharacterDraft) error {
	registry, err := s.LoadRegistry(sessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	changed := false

	for _, draft := range candidates {
		if draft.CanonicalName == "" && draft.ExternalID == "" {
			continue
		}

		existing := resolve(registry, draft.ExternalID, draft.CanonicalName)
		if existing == nil && draft.DisplayName != "" {
			existing = resolve(registry, "", draft.DisplayName)
		}

		if existing != nil {
			if existing.Locked {
				// 锁定角色：自动合并对该实体完全不生效
				s.logger.Infof("角色 %s 已锁定，跳过自动合并", existing.CanonicalName)
				continue
			}
			if draft.DisplayName != "" {
				existing.DisplayName = draft.DisplayName
			}
			if draft.Description != "" {
				existing.Description = draft.Description
			}
			if draft.Status != "" {
				existing.Status = draft.Status
			}
			for _, alias := range draft.Aliases {
				existing.Aliases = appendUnique(existing.Aliases, alias)
			}
			for k, v := range draft.Relationships {
				if existing.Relationships == nil {
					existing.Relationships = map[string]string{}
				}
				existing.Relationships[k] = v
			}
			existing.UpdatedAt = now
			changed = true
			continue
		}

		registry.Characters = append(registry.Characters, &models.Character{
			ID:            utils.GenerateID("char"),
			ExternalID:    draft.ExternalID,
			CanonicalName: draft.CanonicalName,
			DisplayName:   draft.DisplayName,
			Description:   draft.Description,
			Aliases:       draft.Aliases,
			Status:        draft.Status,
			Relationships: draft.Relationships,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		changed = true
	}

	if !changed {
		return nil
	}
	return s.SaveRegistry(sessionID, registry)
}

// ToggleLock 切换角色锁定状态。
// 锁只拦截自动合并写入；显式编辑命令不要求先解锁，这是有意的行为。
func (s *CharacterService) ToggleLock(sessionID, nameOrID string) (*models.Character, bool, error) {
	registry, err := s.LoadRegistry(sessionID)
	if err != nil {
		return nil, false, err
	}

	character := s.find(registry, nameOrID)
	if character == nil {
		return nil, false, apperrors.NewNotFoundError(fmt.Sprintf("角色不存在: %s", nameOrID), nil)
	}

	character.Locked = !character.Locked
	character.UpdatedAt = time.Now()

	if err := s.SaveRegistry(sessionID, registry); err != nil {
		return nil, false, err
	}
	return character, character.Locked, nil
}

// UpdateDescription 显式用户编辑，绕过锁检查
func (s *CharacterService) UpdateDescription(sessionID, nameOrID, description string) (*models.Character, error) {
	registry, err := s.LoadRegistry(sessionID)
	if err != nil {
		return nil, err
	}

	character := s.find(registry, nameOrID)
	if character == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("角色不存在: %s", nameOrID), nil)
	}

	character.Description = description
	character.UpdatedAt = time.Now()

	if err := s.SaveRegistry(sessionID, registry); err != nil {
		return nil, err
	}
	return character, nil
}

// Get 按名称或ID查找角色
func (s *CharacterService) Get(sessionID, nameOrID string) (*models.Character, error) {
	registry, err := s.LoadRegistry(sessionID)
	if err != nil {
		return nil, err
	}
	character := s.find(registry, nameOrID)
	if character == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("角色不存在: %s", nameOrID), nil)
	}
	return character, nil
}

// List 返回会话的全部角色
func (s *CharacterService) List(sessionID string) ([]*models.Character, error) {
	registry, err := s.LoadRegistry(sessionID)
	if err != nil {
		return nil, err
	}
	return registry.Characters, nil
}

func (s *CharacterService) find(registry *models.CharacterRegistry, nameOrID string) *models.Character {
	for _, c := range registry.Characters {
		if c.ID == nameOrID {
			return c
		}
	}
	return resolve(registry, nameOrID, nameOrID)
}

func appendUnique(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}

// sessionDir 会话数据目录（会话是隔离单元）
func sessionDir(sessionID string) string {
	return "sessions/" + sessionID
}
