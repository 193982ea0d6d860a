// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/llm"
	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

// 默认调用参数
const (
	defaultCallTimeout = 60 * time.Second
	judgeCallTimeout   = 45 * time.Second
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService 生成后端网关。
// 统一的调用契约：超时、错误分类、结构化输出提取。
// 重试策略不在这一层，由各调用方按场景决定。
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider // 默认提供者
	providerName  string
	isReady       bool
	readyState    string

	// 角色 → 提供者绑定（评委、写作、冲突检测等可各用不同后端）
	roleProviders map[string]roleHandle

	cache *LLMCache
}

type roleHandle struct {
	provider llm.Provider
	model    string
}

// LLMCache 响应缓存
type LLMCache struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
}

type CacheEntry struct {
	Response  *llm.CompletionResponse
	CreatedAt time.Time
}

// NewLLMService 创建生成后端网关
func NewLLMService() (*LLMService, error) {
	service := createBaseLLMService()

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service, nil
	}

	if cfg.LLMProvider == "" || (cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] == "") {
		service.readyState = "API key not configured"
		return service, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service, nil // 返回未就绪服务而不是错误
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.isReady = true
	service.readyState = "Ready"

	// 加载角色绑定；绑定失败的角色回退到默认提供商
	service.initRoleProviders(cfg)

	return service, nil
}

// NewEmptyLLMService 创建一个空的网关实例作为后备方案
func NewEmptyLLMService() *LLMService {
	service := createBaseLLMService()
	service.providerName = "empty"
	service.readyState = "Standby Service Mode – Please configure the API key in settings"
	return service
}

func createBaseLLMService() *LLMService {
	return &LLMService{
		readyState:    "Uninitialized",
		roleProviders: make(map[string]roleHandle),
		cache: &LLMCache{
			cache:      make(map[string]*CacheEntry),
			expiration: 30 * time.Minute,
		},
	}
}

// initRoleProviders 按 roles.yaml 绑定各角色的提供商
func (s *LLMService) initRoleProviders(cfg *config.AppConfig) {
	logger := utils.GetLogger()

	roles := []string{
		config.RoleWriting, config.RoleScoring1, config.RoleScoring2, config.RoleScoring3,
		config.RoleConflictCheck, config.RoleWorldview, config.RoleRevision,
		config.RoleQualityGate, config.RoleFilter, config.RoleSummary,
	}

	for _, role := range roles {
		binding, ok := config.GetRoleBinding(role)
		if !ok {
			continue
		}

		if binding.Provider == "" || binding.Provider == cfg.LLMProvider {
			// 同一提供商，仅覆盖模型
			s.roleProviders[role] = roleHandle{provider: s.provider, model: binding.Model}
			continue
		}

		provider, err := llm.GetProvider(binding.Provider, cfg.LLMConfig)
		if err != nil {
			logger.Warnf("角色 %s 绑定提供商 %s 失败，回退到默认提供商: %v", role, binding.Provider, err)
			continue
		}
		s.roleProviders[role] = roleHandle{provider: provider, model: binding.Model}
	}
}

// IsReady 返回网关是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回网关就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// GetProviderName 返回默认提供商名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider 更新默认提供商（配置变更时调用）
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.isReady = true
	s.readyState = "Ready"

	// 清理缓存
	s.cache = &LLMCache{
		cache:      make(map[string]*CacheEntry),
		expiration: 30 * time.Minute,
	}

	return nil
}

// resolveRole 返回角色绑定的提供商与模型；未绑定时用默认提供商
func (s *LLMService) resolveRole(role string) (llm.Provider, string) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if handle, ok := s.roleProviders[role]; ok && handle.provider != nil {
		return handle.provider, handle.model
	}
	return s.provider, ""
}

// InvokeRequest 一次后端调用的参数
type InvokeRequest struct {
	Role         string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	Timeout      time.Duration
	// UseCache 为真时按 prompt 维度缓存响应
	UseCache bool
}

// Invoke 调用指定角色绑定的后端生成文本。
// 超时返回 ErrorTypeTimeout，传输/协议错误返回 ErrorTypeBackend，
// 空响应返回 ErrorTypeEmptyGeneration。不在此层重试。
func (s *LLMService) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	provider, model := s.resolveRole(req.Role)
	if provider == nil {
		return "", apperrors.NewBackendError("生成后端未就绪", ErrLLMNotReady)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	var cacheKey string
	if req.UseCache {
		cacheKey = s.generateCacheKey(req.Prompt, req.SystemPrompt, model, req.Role)
		if cached := s.cache.get(cacheKey); cached != nil {
			return cached.Text, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := provider.CompleteText(callCtx, llm.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Model:        model,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewTimeoutError(fmt.Sprintf("后端调用超时(%s): %s", timeout, req.Role), err)
		}
		return "", apperrors.NewBackendError(fmt.Sprintf("后端调用失败: %s", req.Role), err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperrors.NewEmptyGenerationError(fmt.Sprintf("后端返回空内容: %s", req.Role))
	}

	if req.UseCache {
		s.cache.put(cacheKey, resp)
	}

	return text, nil
}

// InvokeStructured 调用后端并把响应解析为结构化输出。
// 提取失败返回 ErrorTypeUnparsable；调用方自行决定 fail-open 还是 fail-closed。
func (s *LLMService) InvokeStructured(ctx context.Context, req InvokeRequest, out interface{}) error {
	text, err := s.Invoke(ctx, req)
	if err != nil {
		return err
	}

	jsonText, ok := ExtractJSON(text)
	if !ok {
		return apperrors.NewUnparsableError("未能从响应中提取结构化内容", nil)
	}

	if err := json.Unmarshal([]byte(jsonText), out); err != nil {
		return apperrors.NewUnparsableError("结构化内容解析失败", err)
	}

	return nil
}

// ExtractJSON 从后端响应中定位结构化片段。
// 优先取第一个 fenced 代码块，否则取第一个顶层花括号平衡的片段。
// 找不到时返回 false，不作任何猜测性修复。
func ExtractJSON(text string) (string, bool) {
	// fenced 块: ```json ... ``` 或 ``` ... ```
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// 跳过语言标记行（如 "json"）
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine == "" || len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if candidate != "" {
				return candidate, true
			}
		}
	}

	// 顶层花括号平衡片段
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

// 缓存实现
func (s *LLMService) generateCacheKey(prompt, systemPrompt, model, role string) string {
	hashInput := fmt.Sprintf("%s:::%s:::%s:::%s:::%s",
		prompt, systemPrompt, model, role, s.GetProviderName())
	h := md5.New()
	h.Write([]byte(hashInput))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func (c *LLMCache) get(key string) *llm.CompletionResponse {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists {
		return nil
	}
	if time.Since(entry.CreatedAt) > c.expiration {
		return nil
	}
	return entry.Response
}

func (c *LLMCache) put(key string, response *llm.CompletionResponse) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[key] = &CacheEntry{
		Response:  response,
		CreatedAt: time.Now(),
	}

	if len(c.cache) > 1000 {
		c.cleanupOldest(100)
	}
}

// cleanupOldest 清理最旧的缓存条目（调用方需持有写锁）
func (c *LLMCache) cleanupOldest(count int) {
	type keyAge struct {
		key string
		age time.Time
	}

	entries := make([]keyAge, 0, len(c.cache))
	for k, v := range c.cache {
		entries = append(entries, keyAge{k, v.CreatedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].age.Before(entries[j].age)
	})

	if count > len(entries) {
		count = len(entries)
	}
	for i := 0; i < count; i++ {
		delete(c.cache, entries[i].key)
	}
}
