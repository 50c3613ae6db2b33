// Package valuation 估值缓存测试
package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeFetcher 可编程的假获取器
type fakeFetcher struct {
	dustFn   func() (decimal.Decimal, error)
	monFn    func() (decimal.Decimal, error)
	lockedFn func(tokenID string) (decimal.Decimal, error)

	dustCalls   atomic.Int64
	monCalls    atomic.Int64
	lockedCalls atomic.Int64
}

func (f *fakeFetcher) FetchDustUSD(_ context.Context) (decimal.Decimal, error) {
	f.dustCalls.Add(1)
	return f.dustFn()
}

func (f *fakeFetcher) FetchMonUSD(_ context.Context) (decimal.Decimal, error) {
	f.monCalls.Add(1)
	return f.monFn()
}

func (f *fakeFetcher) FetchDustLocked(_ context.Context, tokenID string) (decimal.Decimal, error) {
	f.lockedCalls.Add(1)
	return f.lockedFn(tokenID)
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fixed(v string) func() (decimal.Decimal, error) {
	return func() (decimal.Decimal, error) {
		return decimal.RequireFromString(v), nil
	}
}

func failing(msg string) func() (decimal.Decimal, error) {
	return func() (decimal.Decimal, error) {
		return decimal.Zero, errors.New(msg)
	}
}

func TestQuoteCache_FreshHitSkipsFetch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetcher := &fakeFetcher{dustFn: fixed("2.0"), monFn: fixed("1.0")}
	cache := NewQuoteCache(fetcher, 20*time.Second, clock.now, zap.NewNop())

	quotes, fallback, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(fallback) != 0 {
		t.Fatalf("刷新成功不应标记回退字段: %v", fallback)
	}
	if quotes.DustUSD.String() != "2" || quotes.MonUSD.String() != "1" {
		t.Fatalf("报价不符: %+v", quotes)
	}

	// TTL 内的第二次调用不应触发拉取
	clock.advance(10 * time.Second)
	if _, _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetcher.dustCalls.Load() != 1 || fetcher.monCalls.Load() != 1 {
		t.Fatalf("TTL 内不应重复拉取: dust=%d mon=%d",
			fetcher.dustCalls.Load(), fetcher.monCalls.Load())
	}
}

func TestQuoteCache_PartialFallback(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetcher := &fakeFetcher{dustFn: fixed("2.0"), monFn: fixed("1.0")}
	cache := NewQuoteCache(fetcher, 20*time.Second, clock.now, zap.NewNop())

	if _, _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("首次 Get: %v", err)
	}

	// TTL 过期后 MON 报价失败，应回退到旧值并只标记 mon_usd
	clock.advance(21 * time.Second)
	fetcher.dustFn = fixed("2.1")
	fetcher.monFn = failing("mon 接口超时")

	quotes, fallback, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("回退路径不应返回错误: %v", err)
	}
	if quotes.DustUSD.String() != "2.1" || quotes.MonUSD.String() != "1" {
		t.Fatalf("回退后的报价不符: %+v", quotes)
	}
	if len(fallback) != 1 || fallback[0] != "mon_usd" {
		t.Fatalf("回退字段应只有 mon_usd: %v", fallback)
	}

	// 部分回退不前移缓存时间戳：下次调用立即重试失败字段
	monCallsBefore := fetcher.monCalls.Load()
	if _, _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetcher.monCalls.Load() == monCallsBefore {
		t.Fatalf("部分回退后下次调用应立即重试")
	}
}

func TestQuoteCache_NoFallbackError(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetcher := &fakeFetcher{dustFn: failing("dust 接口超时"), monFn: fixed("1.0")}
	cache := NewQuoteCache(fetcher, 20*time.Second, clock.now, zap.NewNop())

	_, _, err := cache.Get(context.Background())
	if !errors.Is(err, ErrNoFallback) {
		t.Fatalf("无旧值可回退应返回 ErrNoFallback, 实际 %v", err)
	}
}

func TestMetadataCache_TTLHit(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetcher := &fakeFetcher{lockedFn: func(string) (decimal.Decimal, error) {
		return decimal.RequireFromString("500"), nil
	}}
	cache := NewMetadataCache(fetcher, 30*time.Minute, 8, clock.now, zap.NewNop())

	for i := 0; i < 3; i++ {
		v, err := cache.Get(context.Background(), "7")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v.String() != "500" {
			t.Fatalf("锁定数量=%s", v.String())
		}
	}
	if fetcher.lockedCalls.Load() != 1 {
		t.Fatalf("TTL 内不应重复拉取: %d", fetcher.lockedCalls.Load())
	}

	// TTL 过期后重新拉取
	clock.advance(31 * time.Minute)
	if _, err := cache.Get(context.Background(), "7"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetcher.lockedCalls.Load() != 2 {
		t.Fatalf("TTL 过期应重新拉取: %d", fetcher.lockedCalls.Load())
	}
}

func TestMetadataCache_FetchFailureNotCached(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fail := true
	fetcher := &fakeFetcher{lockedFn: func(string) (decimal.Decimal, error) {
		if fail {
			return decimal.Zero, errors.New("元数据接口超时")
		}
		return decimal.RequireFromString("300"), nil
	}}
	cache := NewMetadataCache(fetcher, 30*time.Minute, 8, clock.now, zap.NewNop())

	if _, err := cache.Get(context.Background(), "7"); err == nil {
		t.Fatalf("拉取失败应返回错误")
	}

	// 失败不写入缓存，恢复后下次调用应取到新值
	fail = false
	v, err := cache.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.String() != "300" {
		t.Fatalf("锁定数量=%s, 期望 300", v.String())
	}
}

func TestMetadataCache_GetMany_FailureIsolation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fetcher := &fakeFetcher{lockedFn: func(tokenID string) (decimal.Decimal, error) {
		if tokenID == "bad" {
			return decimal.Zero, errors.New("元数据接口超时")
		}
		return decimal.RequireFromString("100"), nil
	}}
	cache := NewMetadataCache(fetcher, 30*time.Minute, 8, clock.now, zap.NewNop())

	tokenIDs := []string{"bad"}
	for i := 0; i < 40; i++ {
		tokenIDs = append(tokenIDs, fmt.Sprintf("%d", i))
	}

	out := cache.GetMany(context.Background(), tokenIDs)
	if len(out) != len(tokenIDs) {
		t.Fatalf("每个输入 token 都应有结果: %d/%d", len(out), len(tokenIDs))
	}
	if !out["bad"].IsZero() {
		t.Fatalf("失败的 token 应按 0 记入: %s", out["bad"].String())
	}
	if out["0"].String() != "100" {
		t.Fatalf("成功的 token 不受失败影响: %s", out["0"].String())
	}
}
