// Package notify 告警文案测试
package notify

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"neverland-monitor/internal/core/model"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestRender_Undercut(t *testing.T) {
	ev := model.ChangeEvent{
		Type:            model.EventUndercut,
		TokenID:         "42",
		SelfRank:        3,
		SelfPrice:       d("10"),
		CompetitorRank:  2,
		CompetitorPrice: d("9"),
		UndercutBy:      d("1"),
		UndercutPct:     d("10"),
	}
	want := "Undercut detected: token #42 now rank #3, competitor at #2 is 9 MON vs your 10 MON (delta 1 MON / 10.000%)."
	if got := Render(ev); got != want {
		t.Fatalf("文案不符:\n got: %s\nwant: %s", got, want)
	}
}

func TestRender_TopRankChange(t *testing.T) {
	ev := model.ChangeEvent{
		Type:     model.EventTopRankChange,
		TopN:     25,
		AfterTop: []string{"8", "7", "12"},
	}
	want := "Top-25 ranking changed. New top: 8, 7, 12"
	if got := Render(ev); got != want {
		t.Fatalf("文案不符:\n got: %s\nwant: %s", got, want)
	}
}

func TestRender_WalletEvents(t *testing.T) {
	moved := model.ChangeEvent{
		Type:     model.EventWalletRankChanged,
		TokenID:  "7",
		OldRank:  4,
		NewRank:  2,
		OldPrice: d("5.5"),
		NewPrice: d("4.25"),
	}
	if got := Render(moved); got != "Your token #7 moved rank 4 -> 2 (5.5 -> 4.25 MON)." {
		t.Fatalf("名次变化文案不符: %s", got)
	}

	appeared := model.ChangeEvent{
		Type:     model.EventWalletListingNew,
		TokenID:  "7",
		NewRank:  6,
		NewPrice: d("3"),
	}
	if got := Render(appeared); got != "Your token #7 appeared at rank #6 (3 MON)." {
		t.Fatalf("新增挂单文案不符: %s", got)
	}

	missing := model.ChangeEvent{
		Type:    model.EventWalletListingMissing,
		TokenID: "7",
		OldRank: 6,
	}
	if got := Render(missing); got != "Your token #7 listing disappeared (was rank #6)." {
		t.Fatalf("挂单消失文案不符: %s", got)
	}
}

func TestRender_UnknownTypeFallsBackToJSON(t *testing.T) {
	ev := model.ChangeEvent{Type: "mystery", EventID: "ev-1"}
	got := Render(ev)
	if !strings.Contains(got, `"event_type":"mystery"`) || !strings.Contains(got, `"event_id":"ev-1"`) {
		t.Fatalf("未知类型应回退为 JSON: %s", got)
	}
}

func TestEscapeAppleScript(t *testing.T) {
	got := escapeAppleScript(`say "hi" \ bye`)
	want := `say \"hi\" \\ bye`
	if got != want {
		t.Fatalf("转义不符: %s", got)
	}
}
