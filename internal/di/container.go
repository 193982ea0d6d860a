// internal/di/container.go
package di

import (
	"fmt"
	"sync"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	"github.com/Corphon/ChatNovelMCP/internal/services"
	"github.com/Corphon/ChatNovelMCP/internal/storage"

	// 注册内置的AI提供者
	_ "github.com/Corphon/ChatNovelMCP/internal/llm/providers/anthropic"
	_ "github.com/Corphon/ChatNovelMCP/internal/llm/providers/openrouter"
)

// Container 是一个简单的依赖注入容器
type Container struct {
	services map[string]interface{}
	mutex    sync.RWMutex
}

// 全局容器实例（单例模式）
var (
	globalContainer *Container
	once            sync.Once
)

// NewContainer 创建一个新的依赖注入容器
func NewContainer() *Container {
	return &Container{
		services: make(map[string]interface{}),
	}
}

// GetContainer 获取全局容器实例
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register 在容器中注册一个服务实例
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services[name] = service
}

// Get 从容器中获取一个服务实例
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	service, exists := c.services[name]
	if !exists {
		return nil
	}
	return service
}

// Has 检查容器中是否存在指定名称的服务
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	_, exists := c.services[name]
	return exists
}

// Clear 清空容器中的所有服务
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.services = make(map[string]interface{})
}

// InitServices 按依赖顺序构建并注册全部服务
func InitServices(cfg *config.AppConfig) (*Container, error) {
	container := GetContainer()

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	llmService, err := services.NewLLMService()
	if err != nil {
		return nil, fmt.Errorf("初始化LLM网关失败: %w", err)
	}
	container.Register("llm", llmService)

	characterService := services.NewCharacterService(fileStorage)
	container.Register("character", characterService)

	voteService := services.NewVoteService(fileStorage)
	container.Register("vote", voteService)

	ideaService := services.NewIdeaService(fileStorage, llmService, voteService)
	container.Register("idea", ideaService)

	knowledgeService := services.NewKnowledgeService(fileStorage, llmService, characterService)
	container.Register("knowledge", knowledgeService)

	novelService := services.NewNovelService(fileStorage, llmService, knowledgeService, characterService)
	container.Register("novel", novelService)

	chatService := services.NewChatService(fileStorage, llmService, novelService, characterService, ideaService)
	container.Register("chat", chatService)

	exportService := services.NewExportService(fileStorage, novelService, characterService)
	container.Register("export", exportService)

	sessionService := services.NewSessionService(cfg.MaxSessions)
	container.Register("session", sessionService)

	return container, nil
}

// MustGetLLM 获取LLM网关
func MustGetLLM(c *Container) *services.LLMService {
	return c.Get("llm").(*services.LLMService)
}

// MustGetStorage 获取文件存储
func MustGetStorage(c *Container) *storage.FileStorage {
	return c.Get("storage").(*storage.FileStorage)
}
