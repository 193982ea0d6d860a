// internal/config/roles_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRolesMissingFile(t *testing.T) {
	if err := LoadRoles(t.TempDir()); err != nil {
		t.Fatalf("roles.yaml 缺失不应报错: %v", err)
	}
	if _, ok := GetRoleBinding(RoleWriting); ok {
		t.Error("无配置时不应有任何绑定")
	}
}

func TestLoadRolesBindings(t *testing.T) {
	dir := t.TempDir()
	content := `roles:
  writing:
    provider: anthropic
    model: claude-sonnet-4
  scoring_1:
    model: small-model
  conflict_check:
    provider: ""
    model: ""
`
	if err := os.WriteFile(filepath.Join(dir, "roles.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	if err := LoadRoles(dir); err != nil {
		t.Fatalf("加载角色配置失败: %v", err)
	}

	binding, ok := GetRoleBinding(RoleWriting)
	if !ok || binding.Provider != "anthropic" || binding.Model != "claude-sonnet-4" {
		t.Errorf("writing 绑定不符: %+v ok=%v", binding, ok)
	}

	// 只配置模型：提供商回退默认
	binding, ok = GetRoleBinding(RoleScoring1)
	if !ok || binding.Provider != "" || binding.Model != "small-model" {
		t.Errorf("scoring_1 绑定不符: %+v ok=%v", binding, ok)
	}

	// 全空的绑定视为未配置
	if _, ok := GetRoleBinding(RoleConflictCheck); ok {
		t.Error("空绑定应视为未配置")
	}

	// 未提及的角色无绑定
	if _, ok := GetRoleBinding(RoleSummary); ok {
		t.Error("未配置的角色不应有绑定")
	}
}

func TestLoadRolesInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "roles.yaml"), []byte("roles: [not a map"), 0644)

	if err := LoadRoles(dir); err == nil {
		t.Error("非法 YAML 应报错")
	}
}

func TestScoringRolesOrder(t *testing.T) {
	roles := ScoringRoles()
	want := []string{RoleScoring1, RoleScoring2, RoleScoring3}
	if len(roles) != len(want) {
		t.Fatalf("评委数应为 %d，得到 %d", len(want), len(roles))
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("评委顺序不符: %v", roles)
		}
	}
}
