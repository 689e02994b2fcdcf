package invalidate

import (
	"os"

	"github.com/modserve/modserve/internal/cache"
)

// Strategy 判断缓存单元对当前请求是否仍然有效。
type Strategy interface {
	// Name 返回策略标识（watch / revalidate），用于日志与诊断。
	Name() string

	// Valid 为 false 时条目按缓存缺失处理，由调用方触发重新编译。
	Valid(unit *cache.Unit) bool

	// Track 登记一次成功编译涉及的输入文件；被动策略为空操作。
	Track(paths ...string)
}

// Revalidator 是无监听模式下的被动策略：每次请求都重新核对主文件与
// 已记录依赖的指纹，任何差异都视为失效。
type Revalidator struct{}

// NewRevalidator 构造被动再验证策略。
func NewRevalidator() *Revalidator {
	return &Revalidator{}
}

func (r *Revalidator) Name() string { return "revalidate" }

// Track 被动模式不维护 WatchSet。
func (r *Revalidator) Track(paths ...string) {}

func (r *Revalidator) Valid(unit *cache.Unit) bool {
	if unit == nil {
		return false
	}
	if !fileUnchanged(unit.Path, unit.Fingerprint) {
		return false
	}
	for dep, recorded := range unit.DepFingerprints {
		if !fileUnchanged(dep, recorded) {
			return false
		}
	}
	return true
}

// fileUnchanged 先用 mtime+size 做廉价比较，不一致时退化到内容哈希，
// 以免仅触碰时间戳的写入造成无谓重编译。
func fileUnchanged(path string, recorded cache.Fingerprint) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.ModTime().UnixNano() == recorded.ModTime && info.Size() == recorded.Size {
		return true
	}

	current, _, err := cache.Snapshot(path)
	if err != nil {
		return false
	}
	return current.Size == recorded.Size && current.Sum == recorded.Sum
}
