// Package valuation 负责获取并缓存估值数据。
// 包含 DUST/USD 与 MON/USD 两个独立报价，以及每个 token 的锁定 DUST 数量。
package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"neverland-monitor/internal/util/backoff"
)

// lockedTraits 锁定数量可能出现的属性名，按优先级排列
var lockedTraits = []string{"Treasury (DUST)", "Amount Locked (DUST)", "Locked DUST"}

// Fetcher 估值数据获取器接口
// 定义报价与锁定数量的获取方法，便于测试时注入假实现
type Fetcher interface {
	// FetchDustUSD 获取 DUST/USD 报价
	FetchDustUSD(ctx context.Context) (decimal.Decimal, error)
	// FetchMonUSD 获取 MON/USD 报价
	FetchMonUSD(ctx context.Context) (decimal.Decimal, error)
	// FetchDustLocked 获取指定 token 锁定的 DUST 数量
	FetchDustLocked(ctx context.Context, tokenID string) (decimal.Decimal, error)
}

// HTTPFetcher HTTP 估值数据获取器
type HTTPFetcher struct {
	// client HTTP 客户端
	client *http.Client
	// dustTokenURL DUST 代币信息 API 地址
	dustTokenURL string
	// vedustURLTemplate 按 token 查询元数据的 URL 模板（含一个 %s）
	vedustURLTemplate string
	// coingeckoURLs MON/USD 候选报价地址，依次尝试
	coingeckoURLs []string
	// llamaURL MON/USD 兜底报价地址
	llamaURL string
}

// NewHTTPFetcher 创建 HTTP 估值数据获取器
// 参数 dustTokenURL: DUST 代币信息 API 地址
// 参数 vedustURLTemplate: token 元数据 URL 模板
// 参数 coingeckoURLs: MON/USD 候选报价地址
// 参数 llamaURL: MON/USD 兜底报价地址
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
func NewHTTPFetcher(dustTokenURL, vedustURLTemplate string, coingeckoURLs []string, llamaURL string, timeoutMs int) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
		dustTokenURL:      dustTokenURL,
		vedustURLTemplate: vedustURLTemplate,
		coingeckoURLs:     coingeckoURLs,
		llamaURL:          llamaURL,
	}
}

// dustTokenResponse DUST 代币信息响应
type dustTokenResponse struct {
	// PriceUsdNorm 归一化 USD 价格，优先使用
	PriceUsdNorm *json.Number `json:"priceUsdNorm"`
	// PriceUsd 原始 USD 价格（放大 1e8），兜底使用
	PriceUsd *json.Number `json:"priceUsd"`
}

// llamaResponse DefiLlama 报价响应
type llamaResponse struct {
	// Coins 币种 -> 报价 映射
	Coins map[string]struct {
		// Price USD 价格
		Price *json.Number `json:"price"`
	} `json:"coins"`
}

// tokenMetadata token 元数据响应
type tokenMetadata struct {
	// Attributes 属性列表
	Attributes []tokenAttribute `json:"attributes"`
}

// tokenAttribute token 属性条目
type tokenAttribute struct {
	// TraitType 属性名
	TraitType string `json:"trait_type"`
	// Value 属性值，可能是数字或带千分位的字符串
	Value json.RawMessage `json:"value"`
}

// FetchDustUSD 获取 DUST/USD 报价
// 优先使用 priceUsdNorm，缺省时用 priceUsd / 1e8
func (f *HTTPFetcher) FetchDustUSD(ctx context.Context) (decimal.Decimal, error) {
	body, err := f.fetchJSON(ctx, f.dustTokenURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("请求 DUST 代币信息失败: %w", err)
	}

	var resp dustTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("解析 DUST 代币信息失败: %w", err)
	}

	if resp.PriceUsdNorm != nil {
		if v, err := decimal.NewFromString(resp.PriceUsdNorm.String()); err == nil {
			return v, nil
		}
	}
	if resp.PriceUsd != nil {
		if v, err := decimal.NewFromString(resp.PriceUsd.String()); err == nil {
			return v.Shift(-8), nil
		}
	}
	return decimal.Zero, fmt.Errorf("DUST 代币信息中没有可用的 USD 价格")
}

// FetchMonUSD 获取 MON/USD 报价
// 依次尝试 CoinGecko 候选地址，全部失败后使用 DefiLlama 兜底
func (f *HTTPFetcher) FetchMonUSD(ctx context.Context) (decimal.Decimal, error) {
	for _, reqURL := range f.coingeckoURLs {
		body, err := f.fetchJSON(ctx, reqURL)
		if err != nil {
			continue
		}
		var payload map[string]map[string]json.Number
		if err := json.Unmarshal(body, &payload); err != nil {
			continue
		}
		for _, key := range []string{"wrapped-monad", "monad"} {
			row, ok := payload[key]
			if !ok {
				continue
			}
			if usd, ok := row["usd"]; ok {
				if v, err := decimal.NewFromString(usd.String()); err == nil && v.IsPositive() {
					return v, nil
				}
			}
		}
	}

	body, err := f.fetchJSON(ctx, f.llamaURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("请求 MON/USD 兜底报价失败: %w", err)
	}
	var resp llamaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("解析 MON/USD 兜底报价失败: %w", err)
	}
	for _, key := range []string{"coingecko:wrapped-monad", "coingecko:monad"} {
		row, ok := resp.Coins[key]
		if !ok || row.Price == nil {
			continue
		}
		if v, err := decimal.NewFromString(row.Price.String()); err == nil && v.IsPositive() {
			return v, nil
		}
	}
	return decimal.Zero, fmt.Errorf("无法获取 MON/USD 报价")
}

// FetchDustLocked 获取指定 token 锁定的 DUST 数量
// 在属性列表中按优先级查找锁定数量属性，解析失败或为负按 0 处理
func (f *HTTPFetcher) FetchDustLocked(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	body, err := f.fetchJSON(ctx, fmt.Sprintf(f.vedustURLTemplate, tokenID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("请求 token %s 元数据失败: %w", tokenID, err)
	}

	var meta tokenMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return decimal.Zero, fmt.Errorf("解析 token %s 元数据失败: %w", tokenID, err)
	}
	return extractDustLocked(&meta), nil
}

// extractDustLocked 从属性列表提取锁定 DUST 数量
// 找不到可解析的值时返回 0；负值钳制为 0
func extractDustLocked(meta *tokenMetadata) decimal.Decimal {
	for _, trait := range lockedTraits {
		for _, attr := range meta.Attributes {
			if attr.TraitType != trait {
				continue
			}
			v, ok := parseFloatish(attr.Value)
			if !ok {
				continue
			}
			if v.IsNegative() {
				return decimal.Zero
			}
			return v
		}
	}
	return decimal.Zero
}

// parseFloatish 解析可能为数字或字符串（含千分位逗号）的属性值
func parseFloatish(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if v, err := decimal.NewFromString(num.String()); err == nil {
			return v, true
		}
		return decimal.Zero, false
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return decimal.Zero, false
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if text == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// fetchJSON 执行 HTTP GET 请求，失败时做两次短退避重试
func (f *HTTPFetcher) fetchJSON(ctx context.Context, reqURL string) ([]byte, error) {
	b := backoff.New(350*time.Millisecond, 2*time.Second, 0.2)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Next()):
			}
		}

		body, err := f.doRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *HTTPFetcher) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "neverland-monitor/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	return body, nil
}
