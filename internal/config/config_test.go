// internal/config/config_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func initConfigForTest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("LLM_API_KEY", "test-key")
	if err := InitConfig(dir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	return dir
}

func TestUpdateLLMConfigPersists(t *testing.T) {
	dir := initConfigForTest(t)

	err := UpdateLLMConfig("anthropic", map[string]string{
		"api_key":       "new-key",
		"default_model": "claude-sonnet-4",
	})
	if err != nil {
		t.Fatalf("更新LLM配置失败: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.LLMProvider != "anthropic" || cfg.LLMConfig["default_model"] != "claude-sonnet-4" {
		t.Errorf("更新后的配置不符: provider=%s config=%v", cfg.LLMProvider, cfg.LLMConfig)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("读取配置文件失败: %v", err)
	}
	var saved AppConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("配置文件应为合法JSON: %v", err)
	}
	if saved.LLMProvider != "anthropic" {
		t.Errorf("持久化的提供商不符: %s", saved.LLMProvider)
	}

	// 重新初始化时合并已保存的 LLM 设置
	if err := InitConfig(dir); err != nil {
		t.Fatalf("重新初始化失败: %v", err)
	}
	if got := GetCurrentConfig().LLMProvider; got != "anthropic" {
		t.Errorf("重载后应保留已保存的提供商，得到 %s", got)
	}
}
