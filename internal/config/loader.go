package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultManifest 是 app shell 的默认资源清单：入口文档、样式表与脚本。
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/css/variables.css",
	"/css/base.css",
	"/css/typography.css",
	"/css/components.css",
	"/css/layout.css",
	"/css/animations.css",
	"/css/responsive.css",
	"/js/config.js",
	"/js/utils.js",
	"/js/particles-config.js",
	"/js/animations.js",
	"/js/interactions.js",
	"/js/main.js",
}

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

	applyGlobalDefaults(&cfg.Global)
	applyShellDefaults(&cfg.Shell)
	applySyncDefaults(&cfg.Sync, cfg.Global.StoragePath)
	applyPushDefaults(&cfg.Push)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	absQueue, err := filepath.Abs(cfg.Sync.QueuePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析队列路径: %w", err)
	}
	cfg.Sync.QueuePath = absQueue

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("UpstreamTimeout", "30s")

	v.SetDefault("Shell.Product", "portfolio")
	v.SetDefault("Shell.Version", "1.0.0")
	v.SetDefault("Shell.OfflinePage", "/offline.html")
	v.SetDefault("Shell.SkipWaiting", true)
	v.SetDefault("Shell.ClaimClients", true)

	v.SetDefault("Sync.Tag", "sync-contact-form")
	v.SetDefault("Sync.ContactEndpoint", "/api/contact")
	v.SetDefault("Sync.Interval", "0s")

	v.SetDefault("Push.Title", "Portfolio Update")
	v.SetDefault("Push.DefaultBody", "New notification")
	v.SetDefault("Push.Icon", "/favicon.png")
	v.SetDefault("Push.Badge", "/badge.png")
	v.SetDefault("Push.PrimaryKey", 1)
	v.SetDefault("Push.OpenURL", "/")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	g.Origin = strings.TrimRight(strings.TrimSpace(g.Origin), "/")
}

func applyShellDefaults(s *ShellConfig) {
	s.Product = strings.TrimSpace(s.Product)
	s.Version = strings.TrimPrefix(strings.TrimSpace(s.Version), "v")
	if len(s.Manifest) == 0 {
		s.Manifest = append([]string(nil), DefaultManifest...)
	}
	for i, entry := range s.Manifest {
		s.Manifest[i] = strings.TrimSpace(entry)
	}
}

func applySyncDefaults(s *SyncConfig, storagePath string) {
	if strings.TrimSpace(s.QueuePath) == "" {
		s.QueuePath = filepath.Join(storagePath, "pending.db")
	}
	if s.Interval.DurationValue() < 0 {
		s.Interval = Duration(0)
	}
}

func applyPushDefaults(p *PushConfig) {
	if len(p.Vibrate) == 0 {
		p.Vibrate = []int{200, 100, 200}
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
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
