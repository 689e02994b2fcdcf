package config

import (
	"errors"
	"strings"
)

var supportedCompilers = map[string]struct{}{
	CompilerAuto: {},
	"lexer":      {},
	"pattern":    {},
}

const supportedCompilerList = "auto|lexer|pattern"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if c.ServeRoot == "" {
		return newFieldError("ServeRoot", "不能为空")
	}
	if !strings.HasPrefix(c.BaseURL, "/") {
		return newFieldError("BaseURL", "必须以 / 开头")
	}
	if c.ConfigFile == "" {
		return newFieldError("ConfigFile", "不能为空")
	}
	if strings.ContainsAny(c.ConfigFile, "/\\") {
		return newFieldError("ConfigFile", "必须是不含路径分隔符的文件名")
	}
	if _, ok := supportedCompilers[strings.ToLower(strings.TrimSpace(c.Compiler))]; !ok {
		return newFieldError("Compiler", "仅支持 "+supportedCompilerList)
	}
	if c.WatchDebounce.DurationValue() < 0 {
		return newFieldError("WatchDebounce", "不能为负数")
	}
	if c.LogMaxSize <= 0 {
		return newFieldError("LogMaxSize", "必须大于 0")
	}
	if c.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}

	return nil
}
