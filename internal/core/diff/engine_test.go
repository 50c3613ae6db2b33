// Package diff 快照对比测试
package diff

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"neverland-monitor/internal/core/model"
)

// row 构造一条已排名挂单
func row(rank int, tokenID, seller, price string) model.Listing {
	return model.Listing{
		Rank:      rank,
		TokenID:   tokenID,
		OrderHash: "0xorder-" + tokenID,
		Seller:    seller,
		PriceMon:  decimal.RequireFromString(price),
	}
}

func mkSnap(listings ...model.Listing) *model.Snapshot {
	return &model.Snapshot{CapturedAt: "2026-03-01T12:00:00Z", Listings: listings}
}

func defaultCfg() Config {
	return Config{TopN: 25, MinUndercut: decimal.Zero}
}

func TestDiff_IdenticalSnapshots_Empty(t *testing.T) {
	snap := mkSnap(
		row(1, "a", "0xs1", "1.0"),
		row(2, "b", "0xs2", "2.0"),
	)
	events := Diff(snap, snap, map[string]bool{"0xs1": true}, defaultCfg())
	if len(events) != 0 {
		t.Fatalf("相同快照应产生空事件列表, 实际 %d 条", len(events))
	}
}

func TestDiff_TopRankChange(t *testing.T) {
	prev := mkSnap(row(1, "a", "0xs1", "1.0"), row(2, "b", "0xs2", "2.0"))
	curr := mkSnap(row(1, "b", "0xs2", "0.5"), row(2, "a", "0xs1", "1.0"))

	events := Diff(prev, curr, nil, Config{TopN: 2, MinUndercut: decimal.Zero})
	if len(events) != 1 {
		t.Fatalf("应产生 1 条 rank_change 事件, 实际 %d", len(events))
	}
	ev := events[0]
	if ev.Type != model.EventTopRankChange {
		t.Fatalf("事件类型=%s", ev.Type)
	}
	if ev.EventID != "rank_top_2:a|b=>b|a" {
		t.Fatalf("EventID=%s", ev.EventID)
	}
	if len(ev.MovedPositions) != 2 {
		t.Fatalf("错位明细应为 2 条, 实际 %d", len(ev.MovedPositions))
	}
	if ev.MovedPositions[0].Position != 1 || ev.MovedPositions[0].BeforeToken != "a" || ev.MovedPositions[0].AfterToken != "b" {
		t.Fatalf("错位明细不符: %+v", ev.MovedPositions[0])
	}
}

func TestDiff_WalletEvents(t *testing.T) {
	wallets := map[string]bool{"0xme": true}

	prev := mkSnap(
		row(1, "a", "0xother", "1.0"),
		row(2, "b", "0xme", "2.0"),
		row(3, "c", "0xme", "3.0"),
	)
	curr := mkSnap(
		row(1, "b", "0xme", "0.5"),
		row(2, "a", "0xother", "1.0"),
		row(3, "d", "0xme", "4.0"),
	)

	events := Diff(prev, curr, wallets, Config{TopN: 1, MinUndercut: decimal.Zero})

	var rankChanged, listingNew, listingMissing *model.ChangeEvent
	for i := range events {
		switch events[i].Type {
		case model.EventWalletRankChanged:
			rankChanged = &events[i]
		case model.EventWalletListingNew:
			listingNew = &events[i]
		case model.EventWalletListingMissing:
			listingMissing = &events[i]
		}
	}

	if rankChanged == nil || rankChanged.TokenID != "b" || rankChanged.OldRank != 2 || rankChanged.NewRank != 1 {
		t.Fatalf("名次变化事件不符: %+v", rankChanged)
	}
	if rankChanged.EventID != "wallet_rank:b:2->1:0xorder-b" {
		t.Fatalf("名次变化 EventID=%s", rankChanged.EventID)
	}
	if listingNew == nil || listingNew.TokenID != "d" || listingNew.NewRank != 3 {
		t.Fatalf("新增挂单事件不符: %+v", listingNew)
	}
	if listingMissing == nil || listingMissing.TokenID != "c" || listingMissing.OldRank != 3 {
		t.Fatalf("挂单消失事件不符: %+v", listingMissing)
	}
}

func TestDiff_Undercut_ThresholdInclusive(t *testing.T) {
	wallets := map[string]bool{"0xme": true}
	curr := mkSnap(
		row(1, "x", "0xother", "8.0"),
		row(2, "y", "0xcomp", "9.0"),
		row(3, "t", "0xme", "10.0"),
	)

	// 差价恰好等于阈值时应触发（含等于）
	events := Diff(curr, curr, wallets, Config{TopN: 25, MinUndercut: decimal.RequireFromString("1.0")})
	if len(events) != 1 {
		t.Fatalf("应产生 1 条 undercut 事件, 实际 %d", len(events))
	}
	ev := events[0]
	if ev.Type != model.EventUndercut {
		t.Fatalf("事件类型=%s", ev.Type)
	}
	if ev.EventID != "undercut:t:0xorder-t:0xorder-y:9:10" {
		t.Fatalf("EventID=%s", ev.EventID)
	}
	if ev.SelfRank != 3 || ev.CompetitorRank != 2 || ev.CompetitorTokenID != "y" {
		t.Fatalf("undercut 字段不符: %+v", ev)
	}
	if model.FormatMon(ev.UndercutBy) != "1" {
		t.Fatalf("UndercutBy=%s", model.FormatMon(ev.UndercutBy))
	}
	if model.FormatMon(ev.UndercutPct) != "10" {
		t.Fatalf("UndercutPct=%s", model.FormatMon(ev.UndercutPct))
	}

	// 差价低于阈值时不触发
	events = Diff(curr, curr, wallets, Config{TopN: 25, MinUndercut: decimal.RequireFromString("1.5")})
	if len(events) != 0 {
		t.Fatalf("差价低于阈值不应触发, 实际 %d 条", len(events))
	}
}

func TestDiff_Undercut_SkipsTrackedCompetitor(t *testing.T) {
	wallets := map[string]bool{"0xme": true, "0xme2": true}
	curr := mkSnap(
		row(1, "a", "0xme2", "9.0"),
		row(2, "t", "0xme", "10.0"),
	)
	events := Diff(curr, curr, wallets, defaultCfg())
	if len(events) != 0 {
		t.Fatalf("上一名同属监控集合不应告警, 实际 %d 条", len(events))
	}
}

func TestDiff_Undercut_TopRankedNotUndercut(t *testing.T) {
	wallets := map[string]bool{"0xme": true}
	curr := mkSnap(
		row(1, "t", "0xme", "1.0"),
		row(2, "a", "0xother", "2.0"),
	)
	events := Diff(curr, curr, wallets, defaultCfg())
	if len(events) != 0 {
		t.Fatalf("第 1 名无上一名, 不应产生事件, 实际 %d 条", len(events))
	}
}

// **Feature: neverland-monitor, Property: Identical Snapshot Quiescence**

func TestDiff_IdenticalSnapshots_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("任意快照与自身对比不产生事件", prop.ForAll(
		func(prices []int, walletPick []bool) bool {
			listings := make([]model.Listing, 0, len(prices))
			for i, p := range prices {
				seller := "0xother"
				if i < len(walletPick) && walletPick[i] {
					seller = "0xme"
				}
				listings = append(listings, model.Listing{
					Rank:      i + 1,
					TokenID:   fmt.Sprintf("%04d", i),
					OrderHash: fmt.Sprintf("0x%04d", i),
					Seller:    seller,
					// 升序价格，保证快照自洽
					PriceMon: decimal.New(int64(i*10+p%10), -2),
				})
			}
			snap := mkSnap(listings...)
			events := Diff(snap, snap, map[string]bool{"0xme": true},
				Config{TopN: 10, MinUndercut: decimal.RequireFromString("100")})
			return len(events) == 0
		},
		gen.SliceOfN(20, gen.IntRange(0, 9)),
		gen.SliceOfN(20, gen.Bool()),
	))

	properties.TestingRun(t)
}
