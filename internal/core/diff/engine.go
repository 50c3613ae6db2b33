// Package diff 实现排名快照对比与变更事件生成。
// 本包为纯函数：所有历史状态由调用方通过快照对提供，内部不保存任何状态，
// 也不做任何 I/O，事件去重由 ledger 包负责。
package diff

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"neverland-monitor/internal/core/model"
)

// maxMovedPositions 单个 rank_change 事件携带的错位明细上限
const maxMovedPositions = 12

// Config 对比配置
type Config struct {
	// TopN 全局排名监控宽度
	TopN int
	// MinUndercut 压单告警的最小差价（MON），含等于
	MinUndercut decimal.Decimal
}

// Diff 对比前后两个快照并生成变更事件
// 事件顺序固定: rank_change（至多一条）、钱包事件（按当前/旧快照
// 排名顺序）、undercut 事件（按当前快照排名顺序）。
// rank_change 与钱包事件基于前后差异，相同快照不产生这两类事件；
// undercut 只看当前快照，持续存在的压单靠台账去重抑制。
// 参数 prev: 上一轮快照
// 参数 curr: 当前快照
// 参数 wallets: 受监控的小写钱包地址集合
func Diff(prev, curr *model.Snapshot, wallets map[string]bool, cfg Config) []model.ChangeEvent {
	var events []model.ChangeEvent

	if ev := detectTopRankChange(prev, curr, cfg.TopN); ev != nil {
		events = append(events, *ev)
	}
	events = append(events, detectWalletChanges(prev, curr, wallets)...)
	events = append(events, detectUndercuts(curr, wallets, cfg.MinUndercut)...)

	return events
}

// detectTopRankChange 检测前 N 名 token 序列变化
// 事件 ID 由完整的前后 token 序列拼接而成：同一迁移不会重复触发，
// 不同迁移必然得到新 ID。
func detectTopRankChange(prev, curr *model.Snapshot, topN int) *model.ChangeEvent {
	prevTop := prev.TopTokenIDs(topN)
	currTop := curr.TopTokenIDs(topN)
	if equalStrings(prevTop, currTop) {
		return nil
	}

	var moved []model.MovedPosition
	maxLen := len(prevTop)
	if len(currTop) > maxLen {
		maxLen = len(currTop)
	}
	if maxLen > topN {
		maxLen = topN
	}
	for idx := 0; idx < maxLen; idx++ {
		var before, after string
		if idx < len(prevTop) {
			before = prevTop[idx]
		}
		if idx < len(currTop) {
			after = currTop[idx]
		}
		if before != after {
			moved = append(moved, model.MovedPosition{
				Position:    idx + 1,
				BeforeToken: before,
				AfterToken:  after,
			})
		}
		if len(moved) >= maxMovedPositions {
			break
		}
	}

	eventID := fmt.Sprintf("rank_top_%d:%s=>%s",
		topN, strings.Join(prevTop, "|"), strings.Join(currTop, "|"))

	return &model.ChangeEvent{
		Type:           model.EventTopRankChange,
		EventID:        eventID,
		TopN:           topN,
		MovedPositions: moved,
		BeforeTop:      head(prevTop, 10),
		AfterTop:       head(currTop, 10),
	}
}

// detectWalletChanges 检测受监控钱包挂单的名次变化、新增与消失
// 事件 ID 包含 token、新旧名次与订单哈希：同一 token 以新订单重新上架
// 与原订单重新出现可以区分开。
func detectWalletChanges(prev, curr *model.Snapshot, wallets map[string]bool) []model.ChangeEvent {
	if len(wallets) == 0 {
		return nil
	}
	prevMap := prev.WalletIndex(wallets)
	currMap := curr.WalletIndex(wallets)

	var events []model.ChangeEvent

	// 按当前快照排名顺序遍历，保证事件顺序确定
	for _, row := range curr.Listings {
		if !wallets[row.Seller] {
			continue
		}
		old, ok := prevMap[row.TokenID]
		if !ok {
			events = append(events, model.ChangeEvent{
				Type:     model.EventWalletListingNew,
				EventID:  fmt.Sprintf("wallet_new:%s:%s", row.TokenID, row.OrderHash),
				TokenID:  row.TokenID,
				NewRank:  row.Rank,
				NewPrice: row.PriceMon,
				Seller:   row.Seller,
				AssetURL: row.AssetURL,
			})
			continue
		}
		if old.Rank != row.Rank {
			events = append(events, model.ChangeEvent{
				Type: model.EventWalletRankChanged,
				EventID: fmt.Sprintf("wallet_rank:%s:%d->%d:%s",
					row.TokenID, old.Rank, row.Rank, row.OrderHash),
				TokenID:  row.TokenID,
				OldRank:  old.Rank,
				NewRank:  row.Rank,
				OldPrice: old.PriceMon,
				NewPrice: row.PriceMon,
				Seller:   row.Seller,
				AssetURL: row.AssetURL,
			})
		}
	}

	// 按旧快照排名顺序遍历消失的挂单
	for _, row := range prev.Listings {
		if !wallets[row.Seller] {
			continue
		}
		if _, ok := currMap[row.TokenID]; ok {
			continue
		}
		events = append(events, model.ChangeEvent{
			Type:     model.EventWalletListingMissing,
			EventID:  fmt.Sprintf("wallet_missing:%s:%s", row.TokenID, row.OrderHash),
			TokenID:  row.TokenID,
			OldRank:  row.Rank,
			OldPrice: row.PriceMon,
			Seller:   row.Seller,
			AssetURL: row.AssetURL,
		})
	}
	return events
}

// detectUndercuts 检测受监控钱包挂单被压单
// 规则: 对每个名次 > 1 的受监控挂单，只检查紧邻上一名；上一名卖家
// 不在监控集合、价格严格更低且差价 >= 阈值（含等于）时触发。
// 上一名同属监控集合时不告警（自压与舰队内竞争不计）。
func detectUndercuts(curr *model.Snapshot, wallets map[string]bool, minUndercut decimal.Decimal) []model.ChangeEvent {
	if len(wallets) == 0 {
		return nil
	}
	var events []model.ChangeEvent
	for _, row := range curr.Listings {
		if !wallets[row.Seller] || row.Rank <= 1 {
			continue
		}
		above := curr.Listings[row.Rank-2]
		if wallets[above.Seller] {
			continue
		}
		if above.PriceMon.Cmp(row.PriceMon) >= 0 {
			continue
		}
		undercutBy := row.PriceMon.Sub(above.PriceMon)
		if undercutBy.Cmp(minUndercut) < 0 {
			continue
		}
		undercutPct := decimal.Zero
		if row.PriceMon.IsPositive() {
			undercutPct = undercutBy.Div(row.PriceMon).Mul(decimal.NewFromInt(100))
		}
		eventID := fmt.Sprintf("undercut:%s:%s:%s:%s:%s",
			row.TokenID, row.OrderHash, above.OrderHash,
			model.FormatMon(above.PriceMon), model.FormatMon(row.PriceMon))

		events = append(events, model.ChangeEvent{
			Type:                model.EventUndercut,
			EventID:             eventID,
			TokenID:             row.TokenID,
			Seller:              row.Seller,
			SelfRank:            row.Rank,
			SelfPrice:           row.PriceMon,
			SelfOrderHash:       row.OrderHash,
			SelfAssetURL:        row.AssetURL,
			CompetitorRank:      above.Rank,
			CompetitorTokenID:   above.TokenID,
			CompetitorSeller:    above.Seller,
			CompetitorPrice:     above.PriceMon,
			CompetitorOrderHash: above.OrderHash,
			CompetitorAssetURL:  above.AssetURL,
			UndercutBy:          undercutBy,
			UndercutPct:         undercutPct,
		})
	}
	return events
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func head(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
