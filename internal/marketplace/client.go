// Package marketplace 实现 Neverland OpenSea 代理 API 的 HTTP 客户端。
// 支持游标分页拉取，失败时按指数退避重试。
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"neverland-monitor/internal/util/backoff"
)

// Client 挂单列表 HTTP 客户端
type Client struct {
	// baseURL 代理 API 地址
	baseURL string
	// client HTTP 客户端
	client *http.Client
	// retries 单次请求的最大尝试次数
	retries int
	// logger 日志记录器
	logger *zap.Logger
}

// NewClient 创建挂单列表客户端
// 参数 baseURL: 代理 API 地址
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
// 参数 retries: 单次请求的最大尝试次数
// 参数 logger: 日志记录器
func NewClient(baseURL string, timeoutMs, retries int, logger *zap.Logger) *Client {
	if retries <= 0 {
		retries = 1
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
		retries: retries,
		logger:  logger.Named("marketplace"),
	}
}

// FetchPage 拉取一页挂单
// 参数 ctx: 上下文，用于取消请求
// 参数 slug: OpenSea 集合标识
// 参数 limit: 每页条数
// 参数 cursor: 分页游标，首页传空
// 失败时按退避重试，尝试次数耗尽后返回最后一次错误。
func (c *Client) FetchPage(ctx context.Context, slug string, limit int, cursor string) (*ListingsPage, error) {
	params := url.Values{}
	params.Set("slug", slug)
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("next", cursor)
	}
	reqURL := c.baseURL + "?" + params.Encode()

	b := backoff.New(time.Second, 20*time.Second, 0.2)
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		page, err := c.doRequest(ctx, reqURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if attempt == c.retries {
			break
		}
		c.logger.Warn("拉取挂单失败，准备重试",
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Next()):
		}
	}
	return nil, fmt.Errorf("拉取挂单失败（%d 次尝试）: %w", c.retries, lastErr)
}

// FetchAll 按游标拉取全部挂单页
// 参数 slug: OpenSea 集合标识
// 参数 limit: 每页条数
// 参数 maxPages: 最大页数上限
// 返回: 展平后的原始挂单记录列表
func (c *Client) FetchAll(ctx context.Context, slug string, limit, maxPages int) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	cursor := ""
	for page := 0; page < maxPages; page++ {
		resp, err := c.FetchPage(ctx, slug, limit, cursor)
		if err != nil {
			return nil, err
		}
		rows = append(rows, resp.Listings...)
		if resp.Next == "" {
			break
		}
		cursor = resp.Next
	}
	return rows, nil
}

// doRequest 执行单次 HTTP GET 请求并解析响应
func (c *Client) doRequest(ctx context.Context, reqURL string) (*ListingsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "neverland-monitor/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	// 429 与 5xx 为可重试状态；其余非 200 同样返回错误交由调用方重试
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	var page ListingsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("解析挂单响应失败: %w", err)
	}
	return &page, nil
}
