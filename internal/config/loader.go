package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.ServeRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析服务根目录: %w", err)
	}
	cfg.ServeRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 4400)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("ServeRoot", "./public")
	v.SetDefault("BaseURL", "/")
	v.SetDefault("ConfigFile", "config.js")
	v.SetDefault("Compiler", CompilerAuto)
	v.SetDefault("Bundle", false)
	v.SetDefault("DepCache", true)
	v.SetDefault("FileWatch", false)
	v.SetDefault("WatchDebounce", "100ms")
}

func applyDefaults(c *Config) {
	if c.ListenPort == 0 {
		c.ListenPort = 4400
	}
	if c.BaseURL == "" {
		c.BaseURL = "/"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = "config.js"
	}
	if c.Compiler == "" {
		c.Compiler = CompilerAuto
	}
	if c.WatchDebounce.DurationValue() == 0 {
		c.WatchDebounce = Duration(100 * time.Millisecond)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, err
			}
			return d, nil
		case int, int32, int64, float64:
			seconds := reflect.ValueOf(v).Convert(reflect.TypeOf(int64(0))).Int()
			return Duration(time.Duration(seconds) * time.Second), nil
		default:
			return data, nil
		}
	}
}
