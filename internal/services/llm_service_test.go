// internal/services/llm_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Corphon/ChatNovelMCP/internal/errors"
	"github.com/Corphon/ChatNovelMCP/internal/llm"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"裸JSON", `{"a": 1}`, `{"a": 1}`, true},
		{"前后有说明文字", `好的，结果如下：{"a": 1}，请查收。`, `{"a": 1}`, true},
		{"fenced带语言标记", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"fenced无语言标记", "```\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"嵌套对象", `{"a": {"b": {"c": 1}}}`, `{"a": {"b": {"c": 1}}}`, true},
		{"字符串里的花括号", `{"text": "包含 } 和 { 的内容"}`, `{"text": "包含 } 和 { 的内容"}`, true},
		{"字符串里的转义引号", `{"text": "他说\"你好\"然后离开"}`, `{"text": "他说\"你好\"然后离开"}`, true},
		{"无结构内容", `这里没有任何结构化内容`, "", false},
		{"未闭合", `{"a": 1`, "", false},
		{"空文本", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			if ok != tt.ok {
				t.Fatalf("ok = %v, 期望 %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, 期望 %q", got, tt.want)
			}
		})
	}
}

func TestInvokeErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("后端未就绪", func(t *testing.T) {
		svc := NewEmptyLLMService()
		_, err := svc.Invoke(ctx, InvokeRequest{Prompt: "hi"})
		if !apperrors.IsType(err, apperrors.ErrorTypeBackend) {
			t.Errorf("期望 backend 错误，得到 %v", err)
		}
	})

	t.Run("传输错误", func(t *testing.T) {
		svc := newTestLLM(errProvider(errors.New("connection refused")))
		_, err := svc.Invoke(ctx, InvokeRequest{Prompt: "hi"})
		if !apperrors.IsType(err, apperrors.ErrorTypeBackend) {
			t.Errorf("期望 backend 错误，得到 %v", err)
		}
	})

	t.Run("空响应", func(t *testing.T) {
		svc := newTestLLM(textProvider("  \n  "))
		_, err := svc.Invoke(ctx, InvokeRequest{Prompt: "hi"})
		if !apperrors.IsEmptyGenerationError(err) {
			t.Errorf("期望 empty_generation 错误，得到 %v", err)
		}
	})

	t.Run("调用超时", func(t *testing.T) {
		slow := &fakeProvider{
			respond: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		svc := newTestLLM(slow)
		_, err := svc.Invoke(ctx, InvokeRequest{Prompt: "hi", Timeout: 20 * time.Millisecond})
		if !apperrors.IsTimeoutError(err) {
			t.Errorf("期望 timeout 错误，得到 %v", err)
		}
	})
}

func TestInvokeStructured(t *testing.T) {
	ctx := context.Background()

	type out struct {
		A int `json:"a"`
	}

	t.Run("正常解析", func(t *testing.T) {
		svc := newTestLLM(textProvider("结果：```json\n{\"a\": 42}\n```"))
		var v out
		if err := svc.InvokeStructured(ctx, InvokeRequest{Prompt: "hi"}, &v); err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if v.A != 42 {
			t.Errorf("a = %d, 期望 42", v.A)
		}
	})

	t.Run("不可解析", func(t *testing.T) {
		svc := newTestLLM(textProvider("纯文本响应"))
		var v out
		err := svc.InvokeStructured(ctx, InvokeRequest{Prompt: "hi"}, &v)
		if !apperrors.IsUnparsableError(err) {
			t.Errorf("期望 unparsable 错误，得到 %v", err)
		}
	})

	t.Run("JSON类型不符", func(t *testing.T) {
		svc := newTestLLM(textProvider(`{"a": "不是数字"}`))
		var v out
		err := svc.InvokeStructured(ctx, InvokeRequest{Prompt: "hi"}, &v)
		if !apperrors.IsUnparsableError(err) {
			t.Errorf("期望 unparsable 错误，得到 %v", err)
		}
	})
}

func TestInvokeRoleBinding(t *testing.T) {
	svc := newTestLLM(textProvider("默认提供者"))
	bindRole(svc, "scoring_1", textProvider("评委专用提供者"))

	got, err := svc.Invoke(context.Background(), InvokeRequest{Role: "scoring_1", Prompt: "hi"})
	if err != nil {
		t.Fatalf("调用失败: %v", err)
	}
	if got != "评委专用提供者" {
		t.Errorf("绑定角色应走专属提供者，得到 %q", got)
	}

	got, _ = svc.Invoke(context.Background(), InvokeRequest{Role: "writing", Prompt: "hi"})
	if got != "默认提供者" {
		t.Errorf("未绑定角色应回退默认提供者，得到 %q", got)
	}
}

func TestInvokeCache(t *testing.T) {
	calls := 0
	counting := &fakeProvider{
		respond: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			return &llm.CompletionResponse{Text: "缓存测试响应"}, nil
		},
	}
	svc := newTestLLM(counting)

	for i := 0; i < 3; i++ {
		if _, err := svc.Invoke(context.Background(), InvokeRequest{Prompt: "同一提示词", UseCache: true}); err != nil {
			t.Fatalf("调用失败: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("相同提示词应命中缓存，实际调用 %d 次", calls)
	}

	// 不开缓存的调用不受影响
	svc.Invoke(context.Background(), InvokeRequest{Prompt: "同一提示词"})
	if calls != 2 {
		t.Errorf("未开缓存应直达后端，实际调用 %d 次", calls)
	}
}

func TestUpdateProviderSwitch(t *testing.T) {
	llm.Register("switch-test", func() llm.Provider {
		return textProvider("切换后的响应")
	})

	found := false
	for _, name := range llm.ListProviders() {
		if name == "switch-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("注册后的提供者应出现在列表中")
	}
	if models := llm.GetSupportedModelsForProvider("switch-test"); len(models) != 1 || models[0] != "fake-model" {
		t.Errorf("提供者模型列表不符: %v", models)
	}
	if models := llm.GetSupportedModelsForProvider("不存在的提供者"); len(models) != 0 {
		t.Errorf("未注册提供者应返回空模型列表，得到 %v", models)
	}

	svc := newTestLLM(textProvider("旧提供者响应"))
	if err := svc.UpdateProvider("不存在的提供者", nil); err == nil {
		t.Fatal("切换到未注册提供者应失败")
	}
	if svc.IsReady() {
		t.Error("切换失败后网关应置为未就绪")
	}

	if err := svc.UpdateProvider("switch-test", map[string]string{}); err != nil {
		t.Fatalf("切换提供者失败: %v", err)
	}
	if !svc.IsReady() || svc.GetProviderName() != "switch-test" {
		t.Errorf("切换后状态不符: ready=%v provider=%s", svc.IsReady(), svc.GetProviderName())
	}
	got, err := svc.Invoke(context.Background(), InvokeRequest{Prompt: "测试"})
	if err != nil || got != "切换后的响应" {
		t.Errorf("切换后应走新提供者: %q, %v", got, err)
	}
}
