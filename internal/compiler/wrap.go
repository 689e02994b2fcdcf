package compiler

import (
	"encoding/json"
	"strings"
)

// wrapRegister 将原始源码包装为 System.registerDynamic 形式。依赖数组
// 使用 JSON 序列化，保证引号与转义符合法。
func wrapRegister(deps []string, source []byte) string {
	encoded, err := json.Marshal(deps)
	if err != nil || deps == nil {
		encoded = []byte("[]")
	}

	var b strings.Builder
	b.Grow(len(source) + len(encoded) + 96)
	b.WriteString("System.registerDynamic(")
	b.Write(encoded)
	b.WriteString(", true, function (require, exports, module) {\n")
	b.Write(source)
	if len(source) > 0 && source[len(source)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("});\n")
	return b.String()
}
