// internal/services/session_service.go
package services

import (
	"container/list"
	"sync"
	"time"

	"github.com/Corphon/ChatNovelMCP/internal/utils"
)

// SessionHandle 一个活跃会话的内存态。
// 持久化数据都在文档存储里，这里只承载会话级写锁与访问时间；
// 被逐出后再次访问会重建，不丢数据。
type SessionHandle struct {
	ID string
	// 每个会话同一时刻只允许一个在途写操作
	Mu sync.Mutex

	lastAccess time.Time
	element    *list.Element
}

// SessionService 会话注册表。
// 按会话ID惰性创建句柄，LRU 逐出防止跨会话内存无界增长。
type SessionService struct {
	mu          sync.Mutex
	sessions    map[string]*SessionHandle
	lru         *list.List // front = 最近访问
	maxSessions int
	logger      *utils.Logger
}

// NewSessionService 创建会话注册表
func NewSessionService(maxSessions int) *SessionService {
	if maxSessions <= 0 {
		maxSessions = 64
	}
	return &SessionService{
		sessions:    make(map[string]*SessionHandle),
		lru:         list.New(),
		maxSessions: maxSessions,
		logger:      utils.GetLogger(),
	}
}

// Acquire 获取（或创建）会话句柄并刷新其 LRU 位置
func (s *SessionService) Acquire(sessionID string) *SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, exists := s.sessions[sessionID]
	if exists {
		handle.lastAccess = time.Now()
		s.lru.MoveToFront(handle.element)
		return handle
	}

	handle = &SessionHandle{
		ID:         sessionID,
		lastAccess: time.Now(),
	}
	handle.element = s.lru.PushFront(handle)
	s.sessions[sessionID] = handle

	if len(s.sessions) > s.maxSessions {
		s.evictOldestLocked()
	}

	return handle
}

// evictOldestLocked 逐出最久未访问的会话（调用方需持有 s.mu）。
// 正在持锁写入的会话跳过，避免逐出在途操作。
func (s *SessionService) evictOldestLocked() {
	for element := s.lru.Back(); element != nil; element = element.Prev() {
		handle := element.Value.(*SessionHandle)
		if !handle.Mu.TryLock() {
			continue
		}
		handle.Mu.Unlock()

		s.lru.Remove(element)
		delete(s.sessions, handle.ID)
		s.logger.Infof("会话 %s 已从注册表逐出（LRU）", handle.ID)
		return
	}
}

// Remove 显式移除会话句柄（会话重置时调用）
func (s *SessionService) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if handle, exists := s.sessions[sessionID]; exists {
		s.lru.Remove(handle.element)
		delete(s.sessions, sessionID)
	}
}

// ActiveCount 当前注册表中的会话数
func (s *SessionService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ActiveSessions 返回当前注册的会话ID列表
func (s *SessionService) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for element := s.lru.Front(); element != nil; element = element.Next() {
		ids = append(ids, element.Value.(*SessionHandle).ID)
	}
	return ids
}
