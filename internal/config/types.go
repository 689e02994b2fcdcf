package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "100ms"、"5s" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// CompilerAuto 表示按可用性顺序自动挑选编译后端。
const CompilerAuto = "auto"

// Config 是 TOML 文件映射的整体结构，描述单实例服务的全部运行参数。
type Config struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	ServeRoot  string `mapstructure:"ServeRoot"`
	BaseURL    string `mapstructure:"BaseURL"`
	ConfigFile string `mapstructure:"ConfigFile"`

	Compiler      string   `mapstructure:"Compiler"`
	Bundle        bool     `mapstructure:"Bundle"`
	DepCache      bool     `mapstructure:"DepCache"`
	FileWatch     bool     `mapstructure:"FileWatch"`
	WatchDebounce Duration `mapstructure:"WatchDebounce"`
}

// ConfigFilePath 返回配置产物（config.js）在磁盘上的 URL 路径形式。
func (c Config) ConfigFilePath() string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	return base + "/" + c.ConfigFile
}

// WatchMode 输出 `watch` 或 `revalidate`，供日志字段使用。
func (c Config) WatchMode() string {
	if c.FileWatch {
		return "watch"
	}
	return "revalidate"
}
