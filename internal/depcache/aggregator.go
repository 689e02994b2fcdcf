package depcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/modserve/modserve/internal/cache"
)

// Aggregator 将缓存单元聚合为 相对路径 → 直接依赖列表 的映射。
type Aggregator struct {
	root string
}

// NewAggregator 以服务根目录构造聚合器，路径在渲染时相对化。
func NewAggregator(root string) *Aggregator {
	return &Aggregator{root: root}
}

// Mapping 返回当前单元集合对应的映射。依赖列表保持编译器声明的顺序，
// 不做去重；无法相对化的路径原样保留。
func (a *Aggregator) Mapping(units []*cache.Unit) map[string][]string {
	mapping := make(map[string][]string, len(units))
	for _, unit := range units {
		key := unit.Path
		if rel, err := filepath.Rel(a.root, unit.Path); err == nil {
			key = filepath.ToSlash(rel)
		}
		deps := unit.Deps
		if deps == nil {
			deps = []string{}
		}
		mapping[key] = deps
	}
	return mapping
}

// Render 序列化映射；encoding/json 对 map 键做字典序排序，输出因此
// 可复现。空映射渲染为 {} 而非缺省。
func (a *Aggregator) Render(units []*cache.Unit) (string, error) {
	encoded, err := json.Marshal(a.Mapping(units))
	if err != nil {
		return "", fmt.Errorf("render depCache: %w", err)
	}
	return string(encoded), nil
}
