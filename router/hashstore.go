package router

import (
	"sync"
	"time"
)

// HashStore 实时内容哈希表。外部哈希协作者是唯一写方，
// 路由器与校验器只读。只增不改；缺失的键表示"尚未就绪"，
// 不是确定性的缺席。
type HashStore struct {
	mu     sync.RWMutex
	hashes map[string]string

	readyOnce sync.Once
	ready     chan struct{}
}

// NewHashStore 创建空的实时哈希表
func NewHashStore() *HashStore {
	return &HashStore{
		hashes: make(map[string]string),
		ready:  make(chan struct{}),
	}
}

// Publish 写入一个文件的实时哈希（协作者契约：每个已加载资源一条）。
// 首次写入会唤醒所有 WaitReady 等待者。
func (s *HashStore) Publish(fileName, hexHash string) {
	s.mu.Lock()
	s.hashes[bareName(fileName)] = hexHash
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

// Get 读取一个文件的实时哈希
func (s *HashStore) Get(fileName string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[bareName(fileName)]
	return h, ok
}

// Len 返回当前条目数
func (s *HashStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// Snapshot 返回当前内容的独立副本
func (s *HashStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		out[k] = v
	}
	return out
}

// WaitReady 有界等待首个条目写入。
// 显式的截止等待原语，替代忙轮询；超时返回 false。
func (s *HashStore) WaitReady(timeout time.Duration) bool {
	select {
	case <-s.ready:
		return true
	case <-time.After(timeout):
		return false
	}
}
