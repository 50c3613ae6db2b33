// Package notify 实现告警文案渲染与外部投递。
// Render 为纯函数；投递（Discord/桌面通知/外部命令）的副作用全部
// 集中在 Dispatcher，核心管线不直接触碰网络或进程。
package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"neverland-monitor/internal/core/model"
)

// Render 渲染事件的人类可读文案
// 文案确定性地包含各事件类型的全部标识字段；未知类型回退为 JSON
func Render(ev model.ChangeEvent) string {
	switch ev.Type {
	case model.EventUndercut:
		return fmt.Sprintf(
			"Undercut detected: token #%s now rank #%d, competitor at #%d is %s MON vs your %s MON (delta %s MON / %.3f%%).",
			ev.TokenID,
			ev.SelfRank,
			ev.CompetitorRank,
			model.FormatMon(ev.CompetitorPrice),
			model.FormatMon(ev.SelfPrice),
			model.FormatMon(ev.UndercutBy),
			ev.UndercutPct.InexactFloat64(),
		)
	case model.EventTopRankChange:
		return fmt.Sprintf("Top-%d ranking changed. New top: %s",
			ev.TopN, strings.Join(ev.AfterTop, ", "))
	case model.EventWalletRankChanged:
		return fmt.Sprintf("Your token #%s moved rank %d -> %d (%s -> %s MON).",
			ev.TokenID, ev.OldRank, ev.NewRank,
			model.FormatMon(ev.OldPrice), model.FormatMon(ev.NewPrice))
	case model.EventWalletListingNew:
		return fmt.Sprintf("Your token #%s appeared at rank #%d (%s MON).",
			ev.TokenID, ev.NewRank, model.FormatMon(ev.NewPrice))
	case model.EventWalletListingMissing:
		return fmt.Sprintf("Your token #%s listing disappeared (was rank #%d).",
			ev.TokenID, ev.OldRank)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return string(ev.Type)
	}
	return string(data)
}
