// Package config 负责加载和验证 YAML 配置文件。
// 提供应用程序所需的所有配置项，包括 marketplace API、监控参数、
// 估值缓存、告警投递与 dashboard 服务配置。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Marketplace 挂单列表 API 配置
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	// Monitor 轮询监控配置
	Monitor MonitorConfig `yaml:"monitor"`
	// Valuation 估值缓存配置
	Valuation ValuationConfig `yaml:"valuation"`
	// Notify 告警投递配置
	Notify NotifyConfig `yaml:"notify"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
	// Server dashboard 服务配置
	Server ServerConfig `yaml:"server"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// MarketplaceConfig 挂单列表 API 配置
type MarketplaceConfig struct {
	// BaseURL OpenSea 代理 API 地址
	BaseURL string `yaml:"base_url"`
	// Slug OpenSea 集合标识
	Slug string `yaml:"slug"`
	// Limit 每页拉取条数
	Limit int `yaml:"limit"`
	// MaxPages 每轮最多拉取页数
	MaxPages int `yaml:"max_pages"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// Retries 单次请求的最大尝试次数
	Retries int `yaml:"retries"`
}

// MonitorConfig 轮询监控配置
type MonitorConfig struct {
	// PollSeconds 轮询间隔（秒），最小 3
	PollSeconds int `yaml:"poll_seconds"`
	// TopN 全局排名监控宽度
	TopN int `yaml:"top_n"`
	// MinUndercutMon 压单告警最小差价（MON），含等于
	MinUndercutMon float64 `yaml:"min_undercut_mon"`
	// PrintTop 每轮打印的前 K 名数量，0 表示不打印
	PrintTop int `yaml:"print_top"`
	// StateFile 状态文件路径（快照 + 事件去重台账）
	StateFile string `yaml:"state_file"`
	// Wallets 受监控的卖家钱包地址列表
	Wallets []string `yaml:"wallets"`
	// Once 只跑一轮后退出（调试用）
	Once bool `yaml:"once"`
}

// ValuationConfig 估值缓存配置
type ValuationConfig struct {
	// QuoteTTLSeconds 报价缓存有效期（秒）
	QuoteTTLSeconds int `yaml:"quote_ttl_seconds"`
	// MetadataTTLSeconds 锁定数量缓存有效期（秒）
	MetadataTTLSeconds int `yaml:"metadata_ttl_seconds"`
	// MaxWorkers 批量拉取锁定数量的并发上限（实际取值范围 4-24）
	MaxWorkers int `yaml:"max_workers"`
	// TimeoutMs HTTP 请求超时时间（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// DustTokenURL DUST 代币信息 API 地址
	DustTokenURL string `yaml:"dust_token_url"`
	// VedustURLTemplate token 元数据 URL 模板（含一个 %s）
	VedustURLTemplate string `yaml:"vedust_url_template"`
	// CoingeckoURLs MON/USD 候选报价地址，依次尝试
	CoingeckoURLs []string `yaml:"coingecko_urls"`
	// LlamaURL MON/USD 兜底报价地址
	LlamaURL string `yaml:"llama_url"`
}

// NotifyConfig 告警投递配置
type NotifyConfig struct {
	// DiscordWebhookURL Discord webhook 地址
	// 环境变量 DISCORD_WEBHOOK_URL 非空时优先生效（见 cmd/monitor）
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	// OnUndercutCmd undercut 事件触发的外部命令
	OnUndercutCmd string `yaml:"on_undercut_cmd"`
	// OnRankChangeCmd rank_change 事件触发的外部命令
	OnRankChangeCmd string `yaml:"on_rank_change_cmd"`
	// NotifyMac 是否发送 macOS 桌面通知
	NotifyMac bool `yaml:"notify_mac"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// EventsEnabled 是否将已发出事件追加到 events.jsonl
	EventsEnabled bool `yaml:"events_enabled"`
}

// ServerConfig dashboard 服务配置
type ServerConfig struct {
	// Enabled 是否启用 dashboard HTTP 服务
	Enabled bool `yaml:"enabled"`
	// Addr 监听地址，如 :8787
	Addr string `yaml:"addr"`
	// CORSOrigin CORS 允许的来源
	CORSOrigin string `yaml:"cors_origin"`
}

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "neverland-monitor"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Marketplace.BaseURL == "" {
		c.Marketplace.BaseURL = "https://app.neverland.money/api/marketplace/opensea"
	}
	if c.Marketplace.Slug == "" {
		c.Marketplace.Slug = "voting-escrow-dust"
	}
	if c.Marketplace.Limit == 0 {
		c.Marketplace.Limit = 200
	}
	if c.Marketplace.MaxPages == 0 {
		c.Marketplace.MaxPages = 20
	}
	if c.Marketplace.TimeoutMs == 0 {
		c.Marketplace.TimeoutMs = 20000 // 20 秒
	}
	if c.Marketplace.Retries == 0 {
		c.Marketplace.Retries = 4
	}

	if c.Monitor.PollSeconds == 0 {
		c.Monitor.PollSeconds = 20
	}
	if c.Monitor.TopN == 0 {
		c.Monitor.TopN = 25
	}
	if c.Monitor.PrintTop == 0 {
		c.Monitor.PrintTop = 5
	}
	if c.Monitor.StateFile == "" {
		c.Monitor.StateFile = "state/monitor_state.json"
	}

	if c.Valuation.QuoteTTLSeconds == 0 {
		c.Valuation.QuoteTTLSeconds = 20
	}
	if c.Valuation.MetadataTTLSeconds == 0 {
		c.Valuation.MetadataTTLSeconds = 1800 // 30 分钟
	}
	if c.Valuation.MaxWorkers == 0 {
		c.Valuation.MaxWorkers = 16
	}
	if c.Valuation.TimeoutMs == 0 {
		c.Valuation.TimeoutMs = 10000 // 10 秒
	}
	if c.Valuation.DustTokenURL == "" {
		c.Valuation.DustTokenURL = "https://app.neverland.money/api/neverland/dust/token"
	}
	if c.Valuation.VedustURLTemplate == "" {
		c.Valuation.VedustURLTemplate = "https://app.neverland.money/api/vedust/%s"
	}
	if len(c.Valuation.CoingeckoURLs) == 0 {
		c.Valuation.CoingeckoURLs = []string{
			"https://api.coingecko.com/api/v3/simple/price?ids=wrapped-monad&vs_currencies=usd",
			"https://api.coingecko.com/api/v3/simple/price?ids=monad&vs_currencies=usd",
		}
	}
	if c.Valuation.LlamaURL == "" {
		c.Valuation.LlamaURL = "https://coins.llama.fi/prices/current/coingecko:wrapped-monad,coingecko:monad"
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8787"
	}
	if c.Server.CORSOrigin == "" {
		c.Server.CORSOrigin = "*"
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	if c.Marketplace.Limit <= 0 {
		errs = append(errs, "marketplace.limit: 每页条数必须为正数")
	}
	if c.Marketplace.MaxPages <= 0 {
		errs = append(errs, "marketplace.max_pages: 页数上限必须为正数")
	}
	if c.Marketplace.Retries <= 0 {
		errs = append(errs, "marketplace.retries: 尝试次数必须为正数")
	}

	if c.Monitor.PollSeconds < 3 {
		errs = append(errs, "monitor.poll_seconds: 轮询间隔不能小于 3 秒")
	}
	if c.Monitor.TopN <= 0 {
		errs = append(errs, "monitor.top_n: 监控宽度必须为正数")
	}
	if c.Monitor.MinUndercutMon < 0 {
		errs = append(errs, "monitor.min_undercut_mon: 差价阈值不能为负数")
	}
	for i, wallet := range c.Monitor.Wallets {
		if strings.TrimSpace(wallet) == "" {
			errs = append(errs, fmt.Sprintf("monitor.wallets[%d]: 钱包地址不能为空", i))
		}
	}

	if c.Valuation.QuoteTTLSeconds <= 0 {
		errs = append(errs, "valuation.quote_ttl_seconds: 报价缓存有效期必须为正数")
	}
	if c.Valuation.MetadataTTLSeconds <= 0 {
		errs = append(errs, "valuation.metadata_ttl_seconds: 锁定数量缓存有效期必须为正数")
	}
	if !strings.Contains(c.Valuation.VedustURLTemplate, "%s") {
		errs = append(errs, "valuation.vedust_url_template: 模板必须包含一个 %s 占位符")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// WalletSet 获取规范化后的受监控钱包集合
// 地址去除首尾空白并统一小写，空条目忽略
// 返回: 小写钱包地址集合
func (c *Config) WalletSet() map[string]bool {
	wallets := make(map[string]bool, len(c.Monitor.Wallets))
	for _, wallet := range c.Monitor.Wallets {
		canon := strings.ToLower(strings.TrimSpace(wallet))
		if canon == "" {
			continue
		}
		wallets[canon] = true
	}
	return wallets
}
