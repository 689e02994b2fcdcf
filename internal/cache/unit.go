package cache

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint 描述源文件在某一时刻的身份：修改时间、大小与内容哈希。
type Fingerprint struct {
	ModTime int64 // UnixNano
	Size    int64
	Sum     uint64
}

// Equal 比较两个指纹是否完全一致。
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.ModTime == other.ModTime && f.Size == other.Size && f.Sum == other.Sum
}

// Snapshot 读取文件内容并生成指纹，内容一并返回供编译复用。
func Snapshot(path string) (Fingerprint, []byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Fingerprint{}, nil, err
	}
	return Fingerprint{
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
		Sum:     xxhash.Sum64(content),
	}, content, nil
}

// Unit 是一次编译的完整产物；Code 与 Deps 出自同一次编译调用，
// 存入缓存后不再修改，只会被整体替换。
type Unit struct {
	Path            string
	Code            string
	Deps            []string
	Fingerprint     Fingerprint
	DepFingerprints map[string]Fingerprint
	ETag            string
	CompiledAt      time.Time
}

// ComputeETag 由主文件与依赖的当前指纹派生校验令牌；任何参与文件的
// 内容变化都会改变令牌，而重新编译出相同内容则保持令牌稳定。
func ComputeETag(path string, main Fingerprint, deps map[string]Fingerprint) string {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	_, _ = h.Write([]byte{0})
	writeFingerprint(h, main)

	keys := make([]string, 0, len(deps))
	for key := range deps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, _ = h.WriteString(key)
		_, _ = h.Write([]byte{0})
		writeFingerprint(h, deps[key])
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

func writeFingerprint(h *xxhash.Digest, fp Fingerprint) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], fp.Sum)
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(fp.Size))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte{0})
}
