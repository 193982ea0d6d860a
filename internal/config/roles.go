// internal/config/roles.go
package config

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// 后端角色名称。每个角色可以绑定到不同的提供商/模型，
// 未绑定的角色回退到全局默认提供商。
const (
	RoleWriting       = "writing"
	RoleScoring1      = "scoring_1"
	RoleScoring2      = "scoring_2"
	RoleScoring3      = "scoring_3"
	RoleConflictCheck = "conflict_check"
	RoleWorldview     = "worldview"
	RoleRevision      = "revision"
	RoleQualityGate   = "quality_gate"
	RoleFilter        = "filter"
	RoleSummary       = "summary"
)

// RoleBinding 单个角色的提供商绑定
type RoleBinding struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// RolesConfig roles.yaml 的文件结构
type RolesConfig struct {
	Roles map[string]RoleBinding `yaml:"roles"`
}

var (
	rolesConfig *RolesConfig
	rolesMutex  sync.RWMutex
)

// LoadRoles 从数据目录加载可选的 roles.yaml。
// 文件不存在不是错误：所有角色回退到默认提供商。
func LoadRoles(dataDir string) error {
	path := filepath.Join(dataDir, "roles.yaml")

	rolesMutex.Lock()
	defer rolesMutex.Unlock()

	rolesConfig = &RolesConfig{Roles: map[string]RoleBinding{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var parsed RolesConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if parsed.Roles != nil {
		rolesConfig = &parsed
	}
	return nil
}

// GetRoleBinding 返回角色的绑定；未配置时返回 false
func GetRoleBinding(role string) (RoleBinding, bool) {
	rolesMutex.RLock()
	defer rolesMutex.RUnlock()

	if rolesConfig == nil {
		return RoleBinding{}, false
	}
	binding, ok := rolesConfig.Roles[role]
	if !ok || binding.Provider == "" && binding.Model == "" {
		return RoleBinding{}, false
	}
	return binding, true
}

// ScoringRoles 返回打分评委角色列表（声明顺序即评委顺序）
func ScoringRoles() []string {
	return []string{RoleScoring1, RoleScoring2, RoleScoring3}
}
