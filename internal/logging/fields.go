package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求路径/分类/命中状态字段，供翻译请求日志复用。
func RequestFields(path, kind, backend, watchMode string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"path":       path,
		"kind":       kind,
		"backend":    backend,
		"watch_mode": watchMode,
		"cache_hit":  cacheHit,
	}
}
