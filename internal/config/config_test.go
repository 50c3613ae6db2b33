// Package config 配置加载测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
monitor:
  wallets:
    - "0xAbCdEf0000000000000000000000000000000001"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "neverland-monitor" || cfg.App.LogLevel != "info" {
		t.Fatalf("应用默认值不符: %+v", cfg.App)
	}
	if cfg.Marketplace.Slug != "voting-escrow-dust" || cfg.Marketplace.Limit != 200 {
		t.Fatalf("marketplace 默认值不符: %+v", cfg.Marketplace)
	}
	if cfg.Monitor.PollSeconds != 20 || cfg.Monitor.TopN != 25 || cfg.Monitor.PrintTop != 5 {
		t.Fatalf("monitor 默认值不符: %+v", cfg.Monitor)
	}
	if cfg.Monitor.StateFile != "state/monitor_state.json" {
		t.Fatalf("状态文件默认路径不符: %s", cfg.Monitor.StateFile)
	}
	if cfg.Valuation.QuoteTTLSeconds != 20 || cfg.Valuation.MetadataTTLSeconds != 1800 {
		t.Fatalf("估值缓存默认值不符: %+v", cfg.Valuation)
	}
	if len(cfg.Valuation.CoingeckoURLs) != 2 {
		t.Fatalf("CoinGecko 候选地址默认值不符: %v", cfg.Valuation.CoingeckoURLs)
	}
	if cfg.Server.Addr != ":8787" || cfg.Server.CORSOrigin != "*" {
		t.Fatalf("服务默认值不符: %+v", cfg.Server)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
marketplace:
  slug: my-collection
  limit: 50
monitor:
  poll_seconds: 5
  top_n: 10
  min_undercut_mon: 0.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != "debug" || cfg.Marketplace.Slug != "my-collection" || cfg.Marketplace.Limit != 50 {
		t.Fatalf("覆盖值未生效: %+v", cfg)
	}
	if cfg.Monitor.PollSeconds != 5 || cfg.Monitor.TopN != 10 || cfg.Monitor.MinUndercutMon != 0.5 {
		t.Fatalf("monitor 覆盖值未生效: %+v", cfg.Monitor)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"轮询间隔过小", "monitor:\n  poll_seconds: 2\n", "poll_seconds"},
		{"负差价阈值", "monitor:\n  min_undercut_mon: -1\n", "min_undercut_mon"},
		{"非法日志级别", "app:\n  log_level: verbose\n", "log_level"},
		{"模板缺少占位符", "valuation:\n  vedust_url_template: https://example.com/fixed\n", "vedust_url_template"},
		{"空白钱包地址", "monitor:\n  wallets:\n    - \"  \"\n", "wallets"},
	}

	for _, tc := range cases {
		path := writeConfig(t, tc.yaml)
		_, err := Load(path)
		if err == nil {
			t.Fatalf("%s: 应返回错误", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: 错误信息应包含 %q, 实际: %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestLoad_FileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("文件缺失应返回错误")
	}
}

func TestWalletSet(t *testing.T) {
	cfg := &Config{}
	cfg.Monitor.Wallets = []string{" 0xABC ", "0xdef", "", "0xABC"}

	set := cfg.WalletSet()
	if len(set) != 2 {
		t.Fatalf("应去重并忽略空条目: %v", set)
	}
	if !set["0xabc"] || !set["0xdef"] {
		t.Fatalf("地址应统一小写: %v", set)
	}
}
