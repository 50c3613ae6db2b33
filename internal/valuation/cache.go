// Package valuation 负责获取并缓存估值数据。
package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"neverland-monitor/internal/core/model"
)

// ErrNoFallback 报价刷新失败且没有旧值可回退
// 本轮排名无法产出，由调用方中止当前周期（进程继续运行）
var ErrNoFallback = errors.New("报价刷新失败且无可回退的旧值")

// QuoteCache 报价缓存
// 短 TTL；刷新失败时回退到上一次成功的值并按字段标记 stale。
// 缓存时间戳只在两个报价都刷新成功时前移：部分回退后下一次调用
// 会立即重试失败的字段，而不是等待残余 TTL。
// 轮询路径与 dashboard 服务路径并发访问，读写均在锁内完成；
// 刷新幂等，窄窗口的重复刷新可以接受，不做请求合并。
type QuoteCache struct {
	// mu 保护 cachedAt 与 quotes
	mu sync.Mutex
	// fetcher 报价获取器
	fetcher Fetcher
	// ttl 缓存有效期
	ttl time.Duration
	// now 时钟（可注入，便于测试）
	now func() time.Time
	// cachedAt 上次两个报价全部刷新成功的时间
	cachedAt time.Time
	// quotes 最近一次可用的报价对
	quotes *model.Quotes
	// logger 日志记录器
	logger *zap.Logger
}

// NewQuoteCache 创建报价缓存
// 参数 fetcher: 报价获取器
// 参数 ttl: 缓存有效期
// 参数 now: 时钟函数，传 nil 使用 time.Now
// 参数 logger: 日志记录器
func NewQuoteCache(fetcher Fetcher, ttl time.Duration, now func() time.Time, logger *zap.Logger) *QuoteCache {
	if now == nil {
		now = time.Now
	}
	return &QuoteCache{
		fetcher: fetcher,
		ttl:     ttl,
		now:     now,
		logger:  logger.Named("quotes"),
	}
}

// Get 获取报价对
// 缓存新鲜时直接返回；否则独立刷新两个报价：某个报价刷新失败且存在
// 旧值时复用旧值并在返回的 fallbackFields 中标记该字段；没有旧值时
// 返回 ErrNoFallback 错误。
// 返回: 报价对、处于回退状态的字段名列表、可能的错误
func (c *QuoteCache) Get(ctx context.Context) (model.Quotes, []string, error) {
	c.mu.Lock()
	if c.quotes != nil && c.now().Sub(c.cachedAt) < c.ttl {
		quotes := *c.quotes
		c.mu.Unlock()
		return quotes, nil, nil
	}
	var stale *model.Quotes
	if c.quotes != nil {
		copied := *c.quotes
		stale = &copied
	}
	c.mu.Unlock()

	var fallbackFields []string

	dustUSD, err := c.fetcher.FetchDustUSD(ctx)
	if err != nil {
		if stale == nil {
			return model.Quotes{}, nil, fmt.Errorf("%w: dust_usd: %v", ErrNoFallback, err)
		}
		c.logger.Warn("DUST/USD 刷新失败，使用旧值", zap.Error(err))
		dustUSD = stale.DustUSD
		fallbackFields = append(fallbackFields, "dust_usd")
	}

	monUSD, err := c.fetcher.FetchMonUSD(ctx)
	if err != nil {
		if stale == nil {
			return model.Quotes{}, nil, fmt.Errorf("%w: mon_usd: %v", ErrNoFallback, err)
		}
		c.logger.Warn("MON/USD 刷新失败，使用旧值", zap.Error(err))
		monUSD = stale.MonUSD
		fallbackFields = append(fallbackFields, "mon_usd")
	}

	quotes := model.Quotes{DustUSD: dustUSD, MonUSD: monUSD}

	c.mu.Lock()
	c.quotes = &quotes
	if len(fallbackFields) == 0 {
		c.cachedAt = c.now()
	}
	c.mu.Unlock()

	return quotes, fallbackFields, nil
}

// metaEntry 锁定数量缓存条目
type metaEntry struct {
	// fetchedAt 拉取时间
	fetchedAt time.Time
	// dustLocked 锁定的 DUST 数量
	dustLocked decimal.Decimal
}

// MetadataCache 锁定数量缓存
// 按 token 缓存，长 TTL；未命中时重新拉取，拉取失败不写入缓存，
// 本轮按 0 处理（不需要回退语义，未命中重拉的代价很低）。
type MetadataCache struct {
	// mu 保护 entries
	mu sync.Mutex
	// fetcher 元数据获取器
	fetcher Fetcher
	// ttl 缓存有效期
	ttl time.Duration
	// now 时钟（可注入，便于测试）
	now func() time.Time
	// maxWorkers 批量拉取的并发上限（实际取值范围 4-24）
	maxWorkers int
	// entries token -> 缓存条目
	entries map[string]metaEntry
	// logger 日志记录器
	logger *zap.Logger
}

// NewMetadataCache 创建锁定数量缓存
// 参数 fetcher: 元数据获取器
// 参数 ttl: 缓存有效期
// 参数 maxWorkers: 批量拉取并发上限
// 参数 now: 时钟函数，传 nil 使用 time.Now
// 参数 logger: 日志记录器
func NewMetadataCache(fetcher Fetcher, ttl time.Duration, maxWorkers int, now func() time.Time, logger *zap.Logger) *MetadataCache {
	if now == nil {
		now = time.Now
	}
	return &MetadataCache{
		fetcher:    fetcher,
		ttl:        ttl,
		now:        now,
		maxWorkers: maxWorkers,
		entries:    make(map[string]metaEntry),
		logger:     logger.Named("metadata"),
	}
}

// Get 获取单个 token 的锁定 DUST 数量
// 缓存命中且未过期时直接返回；否则重新拉取并写入缓存
func (c *MetadataCache) Get(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	c.mu.Lock()
	entry, ok := c.entries[tokenID]
	now := c.now()
	c.mu.Unlock()

	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.dustLocked, nil
	}

	dustLocked, err := c.fetcher.FetchDustLocked(ctx, tokenID)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.entries[tokenID] = metaEntry{fetchedAt: now, dustLocked: dustLocked}
	c.mu.Unlock()
	return dustLocked, nil
}

// GetMany 批量获取锁定 DUST 数量
// 有界并发（4-24 个 worker，与 token 总数无关），单个 token 失败
// 只影响自身：该 token 按 0 记入结果，绝不使整个批次失败。
// 返回: token -> 锁定数量 的完整映射（每个输入 token 都有结果）
func (c *MetadataCache) GetMany(ctx context.Context, tokenIDs []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return out
	}

	workers := c.maxWorkers
	if workers > 24 {
		workers = 24
	}
	if workers < 4 {
		workers = 4
	}
	if workers > len(tokenIDs) {
		workers = len(tokenIDs)
	}

	type result struct {
		tokenID    string
		dustLocked decimal.Decimal
	}

	workCh := make(chan string)
	resultCh := make(chan result)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for tokenID := range workCh {
				dustLocked, err := c.Get(ctx, tokenID)
				if err != nil {
					c.logger.Debug("锁定数量拉取失败，按 0 处理",
						zap.String("token_id", tokenID),
						zap.Error(err))
					dustLocked = decimal.Zero
				}
				resultCh <- result{tokenID: tokenID, dustLocked: dustLocked}
			}
		}()
	}

	go func() {
		defer close(workCh)
		for _, tokenID := range tokenIDs {
			select {
			case <-ctx.Done():
				return
			case workCh <- tokenID:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for res := range resultCh {
		out[res.tokenID] = res.dustLocked
	}
	// 上下文取消时部分 token 可能没有结果，补 0 保证映射完整
	for _, tokenID := range tokenIDs {
		if _, ok := out[tokenID]; !ok {
			out[tokenID] = decimal.Zero
		}
	}
	return out
}
