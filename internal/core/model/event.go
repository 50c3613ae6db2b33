// Package model 定义监控器中使用的核心数据结构。
package model

import "github.com/shopspring/decimal"

// EventType 变更事件类型
type EventType string

const (
	// EventTopRankChange 全局前 N 名重排
	EventTopRankChange EventType = "rank_change"
	// EventWalletRankChanged 受监控钱包挂单名次变化
	EventWalletRankChanged EventType = "wallet_rank_changed"
	// EventWalletListingNew 受监控钱包新增挂单
	EventWalletListingNew EventType = "wallet_listing_new"
	// EventWalletListingMissing 受监控钱包挂单消失
	EventWalletListingMissing EventType = "wallet_listing_missing"
	// EventUndercut 受监控钱包挂单被更低价压单
	EventUndercut EventType = "undercut"
)

// MovedPosition 前 N 名中单个名次的变化
type MovedPosition struct {
	// Position 名次位置（1 基）
	Position int `json:"position"`
	// BeforeToken 变化前该名次的 token，超出旧快照长度时为空
	BeforeToken string `json:"before_token"`
	// AfterToken 变化后该名次的 token，超出新快照长度时为空
	AfterToken string `json:"after_token"`
}

// ChangeEvent 快照对比产生的变更事件
// 各事件类型只填充自己相关的字段
// EventID 由事件关键字段确定性构造：语义相同的事件 ID 必然相同，
// 不同的事件 ID（几乎）不会碰撞，供 ledger 去重使用
type ChangeEvent struct {
	// Type 事件类型
	Type EventType `json:"event_type"`
	// EventID 确定性事件标识
	EventID string `json:"event_id"`

	// TopN 前 N 名宽度（仅 rank_change）
	TopN int `json:"top_n,omitempty"`
	// MovedPositions 名次错位明细，最多 12 条（仅 rank_change）
	MovedPositions []MovedPosition `json:"moved_positions,omitempty"`
	// BeforeTop 变化前前 10 名 token（仅 rank_change）
	BeforeTop []string `json:"before_top,omitempty"`
	// AfterTop 变化后前 10 名 token（仅 rank_change）
	AfterTop []string `json:"after_top,omitempty"`

	// TokenID 相关 token（钱包类与 undercut 事件）
	TokenID string `json:"token_id,omitempty"`
	// Seller 挂单卖家（小写）
	Seller string `json:"seller,omitempty"`
	// OldRank 变化前名次
	OldRank int `json:"old_rank,omitempty"`
	// NewRank 变化后名次
	NewRank int `json:"new_rank,omitempty"`
	// OldPrice 变化前价格（MON）
	OldPrice decimal.Decimal `json:"old_price,omitempty"`
	// NewPrice 变化后价格（MON）
	NewPrice decimal.Decimal `json:"new_price,omitempty"`
	// AssetURL 资产详情页链接
	AssetURL string `json:"asset_url,omitempty"`

	// SelfRank 自己挂单名次（仅 undercut）
	SelfRank int `json:"self_rank,omitempty"`
	// SelfPrice 自己挂单价格（仅 undercut）
	SelfPrice decimal.Decimal `json:"self_price,omitempty"`
	// SelfOrderHash 自己订单哈希（仅 undercut）
	SelfOrderHash string `json:"self_order_hash,omitempty"`
	// SelfAssetURL 自己资产链接（仅 undercut）
	SelfAssetURL string `json:"self_asset_url,omitempty"`
	// CompetitorRank 竞争对手名次（仅 undercut）
	CompetitorRank int `json:"competitor_rank,omitempty"`
	// CompetitorTokenID 竞争对手 token（仅 undercut）
	CompetitorTokenID string `json:"competitor_token_id,omitempty"`
	// CompetitorSeller 竞争对手卖家（仅 undercut）
	CompetitorSeller string `json:"competitor_seller,omitempty"`
	// CompetitorPrice 竞争对手价格（仅 undercut）
	CompetitorPrice decimal.Decimal `json:"competitor_price,omitempty"`
	// CompetitorOrderHash 竞争对手订单哈希（仅 undercut）
	CompetitorOrderHash string `json:"competitor_order_hash,omitempty"`
	// CompetitorAssetURL 竞争对手资产链接（仅 undercut）
	CompetitorAssetURL string `json:"competitor_asset_url,omitempty"`
	// UndercutBy 被压单差价 = SelfPrice - CompetitorPrice（仅 undercut）
	UndercutBy decimal.Decimal `json:"undercut_by,omitempty"`
	// UndercutPct 被压单比例（百分比，仅 undercut）
	UndercutPct decimal.Decimal `json:"undercut_pct,omitempty"`
}
