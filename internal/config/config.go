// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	DebugMode bool   `json:"debug_mode"`

	// LLM 相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 小说协作相关阈值
	ScoreThreshold      int  `json:"score_threshold"`       // 创意采纳的平均分阈值
	ChatTriggerCount    int  `json:"chat_trigger_count"`    // 每累积多少条消息触发一次生成判断
	QualityThreshold    int  `json:"quality_threshold"`     // 消息质量评估阈值（0-100）
	VoteDurationMinutes int  `json:"vote_duration_minutes"` // 冲突投票默认时长
	MaxWordCount        int  `json:"max_word_count"`        // 单章/单场景最大字数
	GlobalSummaryLimit  int  `json:"global_summary_limit"`  // 全局摘要长度上限
	MaxSessions         int  `json:"max_sessions"`          // 内存中保留的会话上限
	FilterEnabled       bool `json:"filter_enabled"`        // 质量不足时是否启用小模型过滤
}

// Config 存储从环境变量加载的基础配置
type Config struct {
	Port      string
	APIKey    string
	DataDir   string
	LogDir    string
	DebugMode bool
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	godotenv.Load()

	config := &Config{
		Port:      getEnv("PORT", "8080"),
		APIKey:    getEnv("LLM_API_KEY", ""),
		DataDir:   getEnvPath("DATA_DIR", "data"),
		LogDir:    getEnvPath("LOG_DIR", "logs"),
		DebugMode: getEnvBool("DEBUG_MODE", true),
	}

	if config.APIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置 LLM API 密钥，生成相关功能在配置前不可用")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:      baseConfig.Port,
		DataDir:   baseConfig.DataDir,
		LogDir:    baseConfig.LogDir,
		DebugMode: baseConfig.DebugMode,

		LLMProvider: getEnv("LLM_PROVIDER", "openrouter"),
		LLMConfig: map[string]string{
			"api_key":       baseConfig.APIKey,
			"default_model": getEnv("LLM_DEFAULT_MODEL", ""),
		},

		ScoreThreshold:      getEnvInt("SCORE_THRESHOLD", 70),
		ChatTriggerCount:    getEnvInt("CHAT_TRIGGER_THRESHOLD", 50),
		QualityThreshold:    getEnvInt("QUALITY_THRESHOLD", 40),
		VoteDurationMinutes: getEnvInt("VOTE_DURATION_MINUTES", 30),
		MaxWordCount:        getEnvInt("MAX_WORD_COUNT", 2000),
		GlobalSummaryLimit:  getEnvInt("GLOBAL_SUMMARY_LIMIT", 500),
		MaxSessions:         getEnvInt("MAX_SESSIONS", 64),
		FilterEnabled:       getEnvBool("FILTER_ENABLED", true),
	}

	// 尝试从文件加载已保存的配置
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 合并配置：保留文件中的 LLM 设置和阈值，使用最新的基础配置
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode

				// 如果文件中没有 API 密钥，使用环境变量的密钥
				if savedConfig.LLMConfig != nil && savedConfig.LLMConfig["api_key"] == "" {
					savedConfig.LLMConfig["api_key"] = baseConfig.APIKey
				}

				applyThresholdDefaults(&savedConfig)
				currentConfig = &savedConfig
			}
		}
	}

	return SaveConfig()
}

// applyThresholdDefaults 为缺失的阈值字段补默认值（旧配置文件兼容）
func applyThresholdDefaults(cfg *AppConfig) {
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 70
	}
	if cfg.ChatTriggerCount <= 0 {
		cfg.ChatTriggerCount = 50
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = 40
	}
	if cfg.VoteDurationMinutes <= 0 {
		cfg.VoteDurationMinutes = 30
	}
	if cfg.MaxWordCount <= 0 {
		cfg.MaxWordCount = 2000
	}
	if cfg.GlobalSummaryLimit <= 0 {
		cfg.GlobalSummaryLimit = 500
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 紧急情况，返回一个基本配置
		baseConfig, _ := Load()
		cfg := &AppConfig{
			Port:      baseConfig.Port,
			DataDir:   baseConfig.DataDir,
			LogDir:    baseConfig.LogDir,
			DebugMode: baseConfig.DebugMode,
			LLMProvider: "openrouter",
			LLMConfig: map[string]string{
				"api_key": baseConfig.APIKey,
			},
		}
		applyThresholdDefaults(cfg)
		return cfg
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新 LLM 配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = config

	return SaveConfig()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}
