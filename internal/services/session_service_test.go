// internal/services/session_service_test.go
package services

import (
	"testing"
)

func TestSessionAcquireAndEvict(t *testing.T) {
	svc := NewSessionService(2)

	a := svc.Acquire("a")
	svc.Acquire("b")
	if svc.ActiveCount() != 2 {
		t.Fatalf("应有 2 个活跃会话，得到 %d", svc.ActiveCount())
	}

	// 超出上限时逐出最久未访问的会话
	svc.Acquire("c")
	if svc.ActiveCount() != 2 {
		t.Fatalf("逐出后应维持 2 个会话，得到 %d", svc.ActiveCount())
	}

	ids := svc.ActiveSessions()
	for _, id := range ids {
		if id == "a" {
			t.Error("最久未访问的会话 a 应被逐出")
		}
	}

	// 被逐出的会话再次访问时重建为新句柄
	a2 := svc.Acquire("a")
	if a2 == a {
		t.Error("逐出后重建应返回新句柄")
	}
}

func TestSessionAcquireRefreshesLRU(t *testing.T) {
	svc := NewSessionService(2)

	svc.Acquire("a")
	svc.Acquire("b")
	svc.Acquire("a") // 刷新 a 的位置
	svc.Acquire("c") // 此时应逐出 b

	for _, id := range svc.ActiveSessions() {
		if id == "b" {
			t.Error("刷新后 b 才是最久未访问的，应被逐出")
		}
	}
	if svc.ActiveCount() != 2 {
		t.Errorf("应有 2 个活跃会话，得到 %d", svc.ActiveCount())
	}
}

func TestEvictSkipsInFlightSession(t *testing.T) {
	svc := NewSessionService(2)

	a := svc.Acquire("a")
	svc.Acquire("b")

	// a 正在持锁写入，逐出应跳过它并改逐 b
	a.Mu.Lock()
	defer a.Mu.Unlock()

	svc.Acquire("c")

	var hasA, hasB bool
	for _, id := range svc.ActiveSessions() {
		switch id {
		case "a":
			hasA = true
		case "b":
			hasB = true
		}
	}
	if !hasA {
		t.Error("持锁中的会话 a 不应被逐出")
	}
	if hasB {
		t.Error("应改逐未持锁的会话 b")
	}
}

func TestSessionRemove(t *testing.T) {
	svc := NewSessionService(4)

	svc.Acquire("a")
	svc.Acquire("b")
	svc.Remove("a")

	if svc.ActiveCount() != 1 {
		t.Errorf("移除后应剩 1 个会话，得到 %d", svc.ActiveCount())
	}

	// 移除不存在的会话是空操作
	svc.Remove("missing")
	if svc.ActiveCount() != 1 {
		t.Errorf("移除缺失会话不应影响计数，得到 %d", svc.ActiveCount())
	}
}

func TestSessionSameHandleWhileActive(t *testing.T) {
	svc := NewSessionService(4)

	h1 := svc.Acquire("a")
	h2 := svc.Acquire("a")
	if h1 != h2 {
		t.Error("未被逐出的会话应返回同一句柄")
	}
}
