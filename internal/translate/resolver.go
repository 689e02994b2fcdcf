package translate

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// errOutsideRoot 表示请求路径试图逃逸服务根目录。
var errOutsideRoot = errors.New("request path escapes serve root")

// resolveRequestPath 将 URL 路径解析为服务根目录下的绝对文件路径，
// 并拒绝任何形式的目录穿越。
func resolveRequestPath(root, baseURL, urlPath string) (string, error) {
	clean := path.Clean("/" + urlPath)

	if base := strings.TrimSuffix(baseURL, "/"); base != "" {
		if !strings.HasPrefix(clean, base+"/") && clean != base {
			return "", errOutsideRoot
		}
		clean = strings.TrimPrefix(clean, base)
		if clean == "" {
			clean = "/"
		}
	}

	resolved := filepath.Join(root, filepath.FromSlash(clean))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return resolved, nil
}

// resolveDependency 将依赖说明符解析为磁盘路径。仅处理相对与根相对
// 说明符；裸说明符（npm 包名等）交由客户端加载器解析，返回空串。
// 依次尝试精确路径、补 .js 扩展名、目录下的 index.js。
func resolveDependency(root, baseDir, specifier string) string {
	if specifier == "" {
		return ""
	}

	var candidate string
	switch {
	case strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../"):
		candidate = filepath.Join(baseDir, filepath.FromSlash(specifier))
	case strings.HasPrefix(specifier, "/"):
		candidate = filepath.Join(root, filepath.FromSlash(specifier))
	default:
		return ""
	}

	if candidate != root && !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
		return ""
	}

	for _, attempt := range []string{candidate, candidate + ".js", filepath.Join(candidate, "index.js")} {
		if info, err := os.Stat(attempt); err == nil && !info.IsDir() {
			return attempt
		}
	}
	return ""
}
