// internal/services/service_test_helpers_test.go
package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Corphon/ChatNovelMCP/internal/config"
	"github.com/Corphon/ChatNovelMCP/internal/llm"
	"github.com/Corphon/ChatNovelMCP/internal/storage"
)

// fakeProvider 按注入的函数响应的测试提供者
type fakeProvider struct {
	respond func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (p *fakeProvider) Initialize(config map[string]string) error { return nil }
func (p *fakeProvider) GetName() string                           { return "fake" }
func (p *fakeProvider) GetSupportedModels() []string              { return []string{"fake-model"} }

func (p *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return p.respond(ctx, req)
}

// textProvider 始终返回固定文本
func textProvider(text string) *fakeProvider {
	return &fakeProvider{
		respond: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: text}, nil
		},
	}
}

// errProvider 始终返回错误
func errProvider(err error) *fakeProvider {
	return &fakeProvider{
		respond: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, err
		},
	}
}

// queuedReply 队列提供者的单次响应
type queuedReply struct {
	text string
	err  error
}

// queueProvider 依次返回预置的响应；并发取用时顺序不保证，
// 但每条响应恰好被消费一次。队列耗尽后重复最后一条。
type queueProvider struct {
	mu      sync.Mutex
	replies []queuedReply
	next    int
}

func (p *queueProvider) Initialize(config map[string]string) error { return nil }
func (p *queueProvider) GetName() string                           { return "queue" }
func (p *queueProvider) GetSupportedModels() []string              { return nil }

func (p *queueProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	idx := p.next
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	} else {
		p.next++
	}
	p.mu.Unlock()

	reply := p.replies[idx]
	if reply.err != nil {
		return nil, reply.err
	}
	return &llm.CompletionResponse{Text: reply.text}, nil
}

// newTestLLM 构造一个已就绪、以 p 为默认提供者的网关
func newTestLLM(p llm.Provider) *LLMService {
	svc := createBaseLLMService()
	svc.provider = p
	svc.providerName = "fake"
	svc.isReady = true
	svc.readyState = "Ready"
	return svc
}

// bindRole 把单个角色绑定到指定提供者
func bindRole(svc *LLMService, role string, p llm.Provider) {
	svc.roleProviders[role] = roleHandle{provider: p}
}

func newTestStorage(t *testing.T) *storage.FileStorage {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建测试存储失败: %v", err)
	}
	t.Cleanup(fs.Close)
	return fs
}

// initTestConfig 用隔离的数据目录初始化配置系统，extra 覆盖阈值环境变量
func initTestConfig(t *testing.T, extra map[string]string) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("LLM_API_KEY", "test-key")
	for k, v := range extra {
		t.Setenv(k, v)
	}
	if err := config.InitConfig(dir); err != nil {
		t.Fatalf("初始化测试配置失败: %v", err)
	}
}
