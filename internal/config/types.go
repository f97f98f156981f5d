package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
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

// GlobalConfig 描述进程级运行参数：监听端口、日志、存储目录与源站。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	Origin          string   `mapstructure:"Origin"`
}

// ShellConfig 描述 app shell 缓存桶：名称由 Product + Version 拼接而成。
type ShellConfig struct {
	Product      string   `mapstructure:"Product"`
	Version      string   `mapstructure:"Version"`
	Manifest     []string `mapstructure:"Manifest"`
	OfflinePage  string   `mapstructure:"OfflinePage"`
	SkipWaiting  bool     `mapstructure:"SkipWaiting"`
	ClaimClients bool     `mapstructure:"ClaimClients"`
}

// SyncConfig 控制联系表单的后台同步。
type SyncConfig struct {
	Tag             string   `mapstructure:"Tag"`
	ContactEndpoint string   `mapstructure:"ContactEndpoint"`
	QueuePath       string   `mapstructure:"QueuePath"`
	Interval        Duration `mapstructure:"Interval"`
}

// PushConfig 是推送通知的固定展示参数。
type PushConfig struct {
	Title       string `mapstructure:"Title"`
	DefaultBody string `mapstructure:"DefaultBody"`
	Icon        string `mapstructure:"Icon"`
	Badge       string `mapstructure:"Badge"`
	Vibrate     []int  `mapstructure:"Vibrate"`
	PrimaryKey  int    `mapstructure:"PrimaryKey"`
	OpenURL     string `mapstructure:"OpenURL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Shell  ShellConfig  `mapstructure:"Shell"`
	Sync   SyncConfig   `mapstructure:"Sync"`
	Push   PushConfig   `mapstructure:"Push"`
}

// CacheName 返回当前版本对应的缓存桶名称，例如 portfolio-v1.0.0。
func (s ShellConfig) CacheName() string {
	return fmt.Sprintf("%s-v%s", s.Product, strings.TrimPrefix(s.Version, "v"))
}

// OriginURL 返回解析后的源站地址（假定 Validate 已经通过）。
func (c *Config) OriginURL() *url.URL {
	parsed, err := url.Parse(c.Global.Origin)
	if err != nil {
		return &url.URL{}
	}
	return parsed
}
