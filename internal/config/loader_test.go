package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(fixture("missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"
Origin = "https://portfolio.example.com"
`
	path := inlineConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadCustomManifest(t *testing.T) {
	cfg := `
StoragePath = "./data"
Origin = "https://portfolio.example.com/"

[Shell]
Product = "portfolio"
Version = "v2.1.0"
Manifest = ["/", "/index.html", "/offline.html"]
SkipWaiting = false
`
	path := inlineConfig(t, cfg)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if len(loaded.Shell.Manifest) != 3 {
		t.Fatalf("自定义 Manifest 应被保留，得到 %v", loaded.Shell.Manifest)
	}
	if loaded.Shell.CacheName() != "portfolio-v2.1.0" {
		t.Fatalf("版本前缀 v 应被归一，得到 %s", loaded.Shell.CacheName())
	}
	if loaded.Shell.SkipWaiting {
		t.Fatalf("SkipWaiting 显式关闭后不应被默认值覆盖")
	}
	if loaded.Global.Origin != "https://portfolio.example.com" {
		t.Fatalf("Origin 末尾斜杠应被去除，得到 %s", loaded.Global.Origin)
	}
}
