package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/mod/semver"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}

	if err := c.Shell.validate(); err != nil {
		return err
	}

	s := c.Sync
	if strings.TrimSpace(s.Tag) == "" {
		return newFieldError("Sync.Tag", "不能为空")
	}
	if err := validatePath(s.ContactEndpoint); err != nil {
		return fmt.Errorf("Sync.ContactEndpoint: %w", err)
	}
	if s.QueuePath == "" {
		return newFieldError("Sync.QueuePath", "不能为空")
	}

	p := c.Push
	if strings.TrimSpace(p.Title) == "" {
		return newFieldError("Push.Title", "不能为空")
	}
	for _, ms := range p.Vibrate {
		if ms < 0 {
			return newFieldError("Push.Vibrate", "不能包含负数")
		}
	}
	if err := validatePath(p.OpenURL); err != nil {
		return fmt.Errorf("Push.OpenURL: %w", err)
	}

	return nil
}

func (s ShellConfig) validate() error {
	if s.Product == "" {
		return newFieldError("Shell.Product", "不能为空")
	}
	if strings.ContainsAny(s.Product, "/\\ ") {
		return newFieldError("Shell.Product", "不允许包含路径分隔符或空格")
	}
	if !semver.IsValid("v" + s.Version) {
		return newFieldError("Shell.Version", "必须是 semver，例如 1.0.0")
	}
	if len(s.Manifest) == 0 {
		return newFieldError("Shell.Manifest", "至少需要一个资源")
	}

	seen := make(map[string]struct{}, len(s.Manifest))
	for i, entry := range s.Manifest {
		if err := validatePath(entry); err != nil {
			return fmt.Errorf("%s: %w", manifestField(i), err)
		}
		if _, exists := seen[entry]; exists {
			return newFieldError(manifestField(i), "重复")
		}
		seen[entry] = struct{}{}
	}

	if s.OfflinePage != "" {
		if err := validatePath(s.OfflinePage); err != nil {
			return fmt.Errorf("Shell.OfflinePage: %w", err)
		}
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源站不应包含路径: %s", raw)
	}
	return nil
}

// validatePath 要求同源绝对路径，拒绝带协议头或 Host 的写法。
func validatePath(raw string) error {
	if raw == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return fmt.Errorf("必须是以 / 开头的同源路径: %s", raw)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return fmt.Errorf("不允许跨源地址: %s", raw)
	}
	return nil
}
