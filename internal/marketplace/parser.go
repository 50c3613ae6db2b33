// Package marketplace 实现挂单记录的规范化与去重。
// 字段映射: identifierOrCriteria -> TokenID, offerer -> Seller,
// price.current.value / 10^decimals -> PriceMon
package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"neverland-monitor/internal/core/model"
)

// assetURLTemplate 资产详情页链接模板: chain/contract/token
const assetURLTemplate = "https://opensea.io/assets/%s/%s/%s"

// defaultDecimals 价格小数位缺省值（wei -> MON）
const defaultDecimals = 18

// ParseListing 解析单条原始挂单记录
// 丢弃条件（返回 false）：
// - 状态存在且不为 active（不区分大小写）
// - 剩余数量存在且 <= 0
// - offer 为空或 token 标识为空
// - JSON 结构无法解析
// 畸形记录只丢弃自身，不影响同批次的其它记录。
func ParseListing(raw json.RawMessage) (model.Listing, bool) {
	var row RawListing
	if err := json.Unmarshal(raw, &row); err != nil {
		return model.Listing{}, false
	}

	status := strings.ToUpper(strings.TrimSpace(row.Status))
	if status != "" && status != "ACTIVE" {
		return model.Listing{}, false
	}

	// 剩余数量存在且可解析为整数时，<= 0 的记录视为已失效
	if row.RemainingQuantity != nil {
		if qty, err := row.RemainingQuantity.Int64(); err == nil && qty <= 0 {
			return model.Listing{}, false
		}
	}

	offer := row.ProtocolData.Parameters.Offer
	if len(offer) == 0 {
		return model.Listing{}, false
	}
	tokenID := strings.TrimSpace(offer[0].IdentifierOrCriteria)
	if tokenID == "" {
		return model.Listing{}, false
	}

	contract := strings.ToLower(strings.TrimSpace(offer[0].Token))
	seller := strings.ToLower(strings.TrimSpace(row.ProtocolData.Parameters.Offerer))
	orderHash := strings.ToLower(strings.TrimSpace(row.OrderHash))

	priceWei, priceMon := toNativePrice(row.Price.Current.Value, row.Price.Current.Decimals)

	currency := row.Price.Current.Currency
	if currency == "" {
		currency = "MON"
	}

	chain := strings.ToLower(row.Chain)
	if chain == "" {
		chain = "monad"
	}
	assetURL := ""
	if contract != "" {
		assetURL = fmt.Sprintf(assetURLTemplate, chain, contract, tokenID)
	}

	return model.Listing{
		TokenID:   tokenID,
		OrderHash: orderHash,
		Seller:    seller,
		Contract:  contract,
		PriceMon:  priceMon,
		PriceWei:  priceWei,
		Currency:  currency,
		AssetURL:  assetURL,
	}, true
}

// toNativePrice 将 wei 字符串与小数位转换为精确十进制价格
// wei 解析失败按 0 处理；decimals 缺省或为负按 18 处理
// 返回: (wei 金额, 主单位金额 = wei / 10^decimals)
func toNativePrice(value string, decimals *int) (decimal.Decimal, decimal.Decimal) {
	wei, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		wei = decimal.Zero
	}

	dec := defaultDecimals
	if decimals != nil && *decimals >= 0 {
		dec = *decimals
	}

	return wei, wei.Shift(int32(-dec))
}

// Normalize 规范化并去重一批原始挂单记录
// 同一 token 的多条记录只保留价格最低的一条；价格完全相同时
// 保留 OrderHash 字典序较小的一条。结果与输入顺序无关。
// 返回: token -> 规范化挂单 的映射（Rank 未赋值）
func Normalize(rows []json.RawMessage) map[string]model.Listing {
	dedup := make(map[string]model.Listing)
	for _, raw := range rows {
		parsed, ok := ParseListing(raw)
		if !ok {
			continue
		}

		existing, found := dedup[parsed.TokenID]
		if !found {
			dedup[parsed.TokenID] = parsed
			continue
		}

		switch parsed.PriceMon.Cmp(existing.PriceMon) {
		case -1:
			dedup[parsed.TokenID] = parsed
		case 0:
			if parsed.OrderHash < existing.OrderHash {
				dedup[parsed.TokenID] = parsed
			}
		}
	}
	return dedup
}
