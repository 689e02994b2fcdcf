package cache

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ProduceFunc 负责产出一个新的 TranslationUnit，通常包含读文件与编译。
type ProduceFunc func(ctx context.Context) (*Unit, error)

// Store 管理 resolved path → TranslationUnit 的进程内映射。
type Store interface {
	// Get 返回路径对应的缓存单元；不存在时 ok 为 false。
	Get(path string) (*Unit, bool)

	// Put 整体替换路径对应的单元。
	Put(unit *Unit)

	// Fill 在缓存缺失或失效时产出新单元；同一路径的并发调用会合并到
	// 一次 produce 执行，所有调用方共享同一结果（成功或失败）。
	Fill(ctx context.Context, path string, produce ProduceFunc) (*Unit, error)

	// Invalidate 移除单个条目。
	Invalidate(path string)

	// InvalidateAll 清空全部条目。
	InvalidateAll()

	// Snapshot 返回当前全部单元，按路径字典序排列。
	Snapshot() []*Unit

	// Len 返回当前条目数，供诊断接口使用。
	Len() int
}

// NewStore 构建内存缓存，整个服务实例复用一份。
func NewStore() Store {
	return &memoryStore{
		units: make(map[string]*Unit),
	}
}

type memoryStore struct {
	mu     sync.RWMutex
	units  map[string]*Unit
	flight singleflight.Group
}

func (s *memoryStore) Get(path string) (*Unit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[path]
	return unit, ok
}

func (s *memoryStore) Put(unit *Unit) {
	if unit == nil {
		return
	}
	s.mu.Lock()
	s.units[unit.Path] = unit
	s.mu.Unlock()
}

func (s *memoryStore) Fill(ctx context.Context, path string, produce ProduceFunc) (*Unit, error) {
	result, err, _ := s.flight.Do(path, func() (interface{}, error) {
		// 客户端断开不应浪费已经开始的编译，结果留给后续请求复用。
		unit, err := produce(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.Put(unit)
		return unit, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Unit), nil
}

func (s *memoryStore) Invalidate(path string) {
	s.mu.Lock()
	delete(s.units, path)
	s.mu.Unlock()
}

func (s *memoryStore) InvalidateAll() {
	s.mu.Lock()
	s.units = make(map[string]*Unit)
	s.mu.Unlock()
}

func (s *memoryStore) Snapshot() []*Unit {
	s.mu.RLock()
	units := make([]*Unit, 0, len(s.units))
	for _, unit := range s.units {
		units = append(units, unit)
	}
	s.mu.RUnlock()

	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}
