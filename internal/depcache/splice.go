package depcache

import (
	"fmt"
	"regexp"

	"github.com/modserve/modserve/internal/cache"
)

// depCacheKeyRe 定位配置产物中的扩展点：裸标识符或带引号的 depCache
// 键，后随冒号与对象字面量的起始大括号。
var depCacheKeyRe = regexp.MustCompile(`(["']?)depCache(["']?)\s*:\s*\{`)

// Augment 将渲染后的映射拼接进配置产物文本。产物已定义 depCache 键时
// 原位替换其对象值，不会重复插入；未定义时在文末追加一段
// System.config 调用。周边配置内容保持原样。
func (a *Aggregator) Augment(artifact []byte, units []*cache.Unit) ([]byte, error) {
	rendered, err := a.Render(units)
	if err != nil {
		return nil, err
	}

	loc := depCacheKeyRe.FindIndex(artifact)
	if loc == nil {
		appended := fmt.Sprintf("\nSystem.config({\"depCache\": %s});\n", rendered)
		return append(append([]byte{}, artifact...), []byte(appended)...), nil
	}

	objStart := loc[1] - 1 // 指向匹配末尾的 {
	objEnd, err := matchBalancedObject(artifact, objStart)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(artifact)+len(rendered))
	out = append(out, artifact[:objStart]...)
	out = append(out, []byte(rendered)...)
	out = append(out, artifact[objEnd:]...)
	return out, nil
}

// matchBalancedObject 从 start 处的 { 开始做括号配对，跳过字符串内容，
// 返回对象结束位置之后的下标。
func matchBalancedObject(text []byte, start int) (int, error) {
	depth := 0
	i := start
	for i < len(text) {
		c := text[i]
		switch c {
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
			if depth == 0 {
				return i, nil
			}
		case '\'', '"', '`':
			quote := c
			i++
			for i < len(text) {
				if text[i] == '\\' {
					i += 2
					continue
				}
				if text[i] == quote {
					i++
					break
				}
				i++
			}
		default:
			i++
		}
	}
	return 0, fmt.Errorf("depCache extension point object is not balanced")
}
