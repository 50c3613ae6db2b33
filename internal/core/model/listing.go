// Package model 定义监控器中使用的核心数据结构。
// 包含规范化挂单、排名快照、估值报价、折扣挂单等核心类型。
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Listing 规范化挂单
// 表示某个 token 当前唯一有效的最低价卖单（去重后）
// 价格使用精确十进制表示，避免二进制浮点数在相等比较时产生漂移
type Listing struct {
	// Rank 价格名次（1 为最便宜），由 rank 包在快照构建时赋值
	Rank int `json:"rank"`
	// TokenID token 标识（来自 offer 第一项）
	TokenID string `json:"token_id"`
	// OrderHash 订单哈希，每个订单唯一，统一小写
	OrderHash string `json:"order_hash"`
	// Seller 卖家钱包地址，统一小写
	Seller string `json:"seller"`
	// Contract 合约地址，统一小写
	Contract string `json:"contract"`
	// PriceMon 挂单价格（MON，主单位精确十进制）
	// 计算公式: PriceWei / 10^decimals
	PriceMon decimal.Decimal `json:"price_native"`
	// PriceWei 挂单价格（wei，最小单位整数）
	PriceWei decimal.Decimal `json:"price_wei"`
	// Currency 计价货币标识
	Currency string `json:"currency"`
	// AssetURL 资产详情页链接，无合约地址时为空字符串
	AssetURL string `json:"asset_url"`
}

// Snapshot 排名快照
// 按价格升序排列的规范化挂单序列，每次轮询全量重建，不做增量修改
type Snapshot struct {
	// CapturedAt 快照采集时间（ISO-8601 UTC）
	CapturedAt string `json:"captured_at"`
	// Listings 挂单列表，按 (价格, token) 升序，Rank 为 1 基名次
	Listings []Listing `json:"listings"`
}

// TopTokenIDs 获取快照前 n 名的 token 列表
// 参数 n: 截取名次上限
func (s *Snapshot) TopTokenIDs(n int) []string {
	if s == nil {
		return nil
	}
	if n > len(s.Listings) {
		n = len(s.Listings)
	}
	out := make([]string, 0, n)
	for _, row := range s.Listings[:n] {
		out = append(out, row.TokenID)
	}
	return out
}

// WalletIndex 按 token 索引属于指定钱包集合的挂单
// 参数 wallets: 小写钱包地址集合
// 返回: token -> 挂单 的映射
func (s *Snapshot) WalletIndex(wallets map[string]bool) map[string]Listing {
	out := make(map[string]Listing)
	if s == nil {
		return out
	}
	for _, row := range s.Listings {
		if wallets[row.Seller] {
			out[row.TokenID] = row
		}
	}
	return out
}

// Quotes 估值报价对
// DUST/USD 与 MON/USD 两个独立报价，分别拉取、分别回退
type Quotes struct {
	// DustUSD DUST 对 USD 报价
	DustUSD decimal.Decimal `json:"dust_usd"`
	// MonUSD MON 对 USD 报价
	MonUSD decimal.Decimal `json:"mon_usd"`
}

// DiscountListing 折扣视图挂单
// 规范化挂单与估值数据合并后的结果，按折扣率重新排名
type DiscountListing struct {
	// RankDiscount 折扣名次（1 为折扣最大），与价格名次相互独立
	RankDiscount int `json:"rank_discount"`
	// TokenID token 标识
	TokenID string `json:"token_id"`
	// Seller 卖家钱包地址（小写）
	Seller string `json:"seller"`
	// OrderHash 订单哈希（小写）
	OrderHash string `json:"order_hash"`
	// PriceMon 挂单价格（MON）
	PriceMon decimal.Decimal `json:"price_mon"`
	// PriceWei 挂单价格（wei）
	PriceWei decimal.Decimal `json:"price_wei"`
	// DustLocked 该 token 锁定的 DUST 数量
	DustLocked decimal.Decimal `json:"dust_locked"`
	// DustValueUSD 锁定价值（USD）= DustLocked * DustUSD
	DustValueUSD decimal.Decimal `json:"dust_value_usd"`
	// ListingValueUSD 挂单价值（USD）= PriceMon * MonUSD
	ListingValueUSD decimal.Decimal `json:"listing_value_usd"`
	// DiscountPct 折扣率（百分比）
	// 计算公式: (DustValueUSD - ListingValueUSD) / DustValueUSD * 100
	DiscountPct decimal.Decimal `json:"discount_pct"`
	// DustPerMon 单位价格锁定量 = DustLocked / PriceMon
	DustPerMon decimal.Decimal `json:"dust_per_mon"`
	// AssetURL 资产详情页链接
	AssetURL string `json:"asset_url"`
}

// FormatMon 格式化 MON 金额
// 保留最多 8 位小数并去掉末尾的 0 与小数点，用于事件 ID 与告警文案
func FormatMon(v decimal.Decimal) string {
	s := v.StringFixed(8)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
