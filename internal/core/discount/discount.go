// Package discount 实现折扣视图排名与威胁检测。
// 将价格排名快照与估值数据合并，按折扣率重新排名，供 dashboard 使用。
package discount

import (
	"sort"

	"github.com/shopspring/decimal"

	"neverland-monitor/internal/core/model"
)

// hundred 百分比换算常量
var hundred = decimal.NewFromInt(100)

// Build 构建折扣排名
// 对每个挂单: 锁定数量未知按 0 处理；锁定价值 <= 0 的挂单无法计算
// 有意义的折扣，直接排除。
// 排序规则: 折扣率降序；折扣率相同时价格降序（更贵的排前）；
// 最后按 TokenID 升序兜底，保证全序确定。
// RankDiscount 按位置赋值 1..N，与价格名次相互独立。
// 参数 snap: 价格排名快照
// 参数 quotes: 估值报价对
// 参数 lockedByToken: token -> 锁定 DUST 数量
func Build(snap *model.Snapshot, quotes model.Quotes, lockedByToken map[string]decimal.Decimal) []model.DiscountListing {
	ranked := make([]model.DiscountListing, 0, len(snap.Listings))
	for _, row := range snap.Listings {
		dustLocked := lockedByToken[row.TokenID]
		if !dustLocked.IsPositive() {
			continue
		}
		dustValueUSD := dustLocked.Mul(quotes.DustUSD)
		if !dustValueUSD.IsPositive() {
			continue
		}
		listingValueUSD := row.PriceMon.Mul(quotes.MonUSD)
		discountPct := dustValueUSD.Sub(listingValueUSD).Div(dustValueUSD).Mul(hundred)

		dustPerMon := decimal.Zero
		if row.PriceMon.IsPositive() {
			dustPerMon = dustLocked.Div(row.PriceMon)
		}

		ranked = append(ranked, model.DiscountListing{
			TokenID:         row.TokenID,
			Seller:          row.Seller,
			OrderHash:       row.OrderHash,
			PriceMon:        row.PriceMon,
			PriceWei:        row.PriceWei,
			DustLocked:      dustLocked,
			DustValueUSD:    dustValueUSD,
			ListingValueUSD: listingValueUSD,
			DiscountPct:     discountPct,
			DustPerMon:      dustPerMon,
			AssetURL:        row.AssetURL,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		switch ranked[i].DiscountPct.Cmp(ranked[j].DiscountPct) {
		case 1:
			return true
		case -1:
			return false
		}
		switch ranked[i].PriceMon.Cmp(ranked[j].PriceMon) {
		case 1:
			return true
		case -1:
			return false
		}
		return ranked[i].TokenID < ranked[j].TokenID
	})

	for i := range ranked {
		ranked[i].RankDiscount = i + 1
	}
	return ranked
}

// Threat 威胁条目
// 受监控挂单在折扣排名中的紧邻上一名不属于监控集合时记为威胁
type Threat struct {
	// MyToken 自己的 token
	MyToken string `json:"my_token"`
	// MySeller 自己的卖家地址
	MySeller string `json:"my_seller"`
	// MyRank 自己的折扣名次
	MyRank int `json:"my_rank"`
	// MyDiscountPct 自己的折扣率
	MyDiscountPct decimal.Decimal `json:"my_discount_pct"`
	// MyPriceMon 自己的挂单价格
	MyPriceMon decimal.Decimal `json:"my_price_mon"`
	// MyDustPerMon 自己的单位价格锁定量
	MyDustPerMon decimal.Decimal `json:"my_dust_per_mon"`
	// CompetitorToken 竞争对手 token
	CompetitorToken string `json:"competitor_token"`
	// CompetitorRank 竞争对手折扣名次
	CompetitorRank int `json:"competitor_rank"`
	// CompetitorDiscountPct 竞争对手折扣率
	CompetitorDiscountPct decimal.Decimal `json:"competitor_discount_pct"`
	// CompetitorPriceMon 竞争对手挂单价格
	CompetitorPriceMon decimal.Decimal `json:"competitor_price_mon"`
	// CompetitorDustPerMon 竞争对手单位价格锁定量
	CompetitorDustPerMon decimal.Decimal `json:"competitor_dust_per_mon"`
	// CompetitorSeller 竞争对手卖家地址
	CompetitorSeller string `json:"competitor_seller"`
}

// Threats 检测折扣排名中的威胁
// 参数 listings: 折扣排名（RankDiscount 已赋值）
// 参数 wallets: 受监控的小写钱包地址集合
func Threats(listings []model.DiscountListing, wallets map[string]bool) []Threat {
	var threats []Threat
	for _, row := range listings {
		if !wallets[row.Seller] || row.RankDiscount <= 1 {
			continue
		}
		above := listings[row.RankDiscount-2]
		if wallets[above.Seller] {
			continue
		}
		threats = append(threats, Threat{
			MyToken:               row.TokenID,
			MySeller:              row.Seller,
			MyRank:                row.RankDiscount,
			MyDiscountPct:         row.DiscountPct,
			MyPriceMon:            row.PriceMon,
			MyDustPerMon:          row.DustPerMon,
			CompetitorToken:       above.TokenID,
			CompetitorRank:        above.RankDiscount,
			CompetitorDiscountPct: above.DiscountPct,
			CompetitorPriceMon:    above.PriceMon,
			CompetitorDustPerMon:  above.DustPerMon,
			CompetitorSeller:      above.Seller,
		})
	}
	return threats
}
