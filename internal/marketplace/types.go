// Package marketplace 定义 Neverland OpenSea 代理 API 的消息类型。
package marketplace

import "encoding/json"

// ListingsPage 挂单列表分页响应
// API: GET {base_url}?slug={slug}&limit={limit}&next={cursor}
type ListingsPage struct {
	// Listings 原始挂单记录列表
	// 保留为 RawMessage，逐条解析，单条畸形记录不影响整页
	Listings []json.RawMessage `json:"listings"`
	// Next 下一页游标，为空表示没有更多页
	Next string `json:"next"`
}

// RawListing OpenSea 挂单原始记录
// 仅映射规范化所需字段，其余字段忽略
type RawListing struct {
	// Status 挂单状态，非 "active"（不区分大小写）的记录会被丢弃
	Status string `json:"status"`
	// RemainingQuantity 剩余数量，存在且 <= 0 时丢弃；缺省视为 1
	RemainingQuantity *json.Number `json:"remaining_quantity"`
	// Chain 链标识，缺省为 monad
	Chain string `json:"chain"`
	// OrderHash 订单哈希
	OrderHash string `json:"order_hash"`
	// ProtocolData Seaport 协议数据
	ProtocolData ProtocolData `json:"protocol_data"`
	// Price 价格信息
	Price PriceInfo `json:"price"`
}

// ProtocolData Seaport 协议数据
type ProtocolData struct {
	// Parameters 订单参数
	Parameters OrderParameters `json:"parameters"`
}

// OrderParameters Seaport 订单参数
type OrderParameters struct {
	// Offerer 卖家钱包地址
	Offerer string `json:"offerer"`
	// Offer 出售资产列表，第一项为被出售的 token
	Offer []OfferItem `json:"offer"`
}

// OfferItem 出售资产条目
type OfferItem struct {
	// IdentifierOrCriteria token 标识
	IdentifierOrCriteria string `json:"identifierOrCriteria"`
	// Token 资产合约地址
	Token string `json:"token"`
}

// PriceInfo 价格信息
type PriceInfo struct {
	// Current 当前价格
	Current CurrentPrice `json:"current"`
}

// CurrentPrice 当前价格详情
type CurrentPrice struct {
	// Value 价格最小单位金额（wei），十进制整数字符串
	Value string `json:"value"`
	// Decimals 小数位数，缺省或为负时按 18 处理
	Decimals *int `json:"decimals"`
	// Currency 计价货币，缺省为 MON
	Currency string `json:"currency"`
}
