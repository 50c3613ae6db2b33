// Package rank 实现挂单的全序排名。
// 排名结果会跨快照比较并对外暴露，任何实现都必须逐位复现同一顺序。
package rank

import (
	"sort"
	"time"

	"neverland-monitor/internal/core/model"
	"neverland-monitor/internal/util/timeutil"
)

// Build 构建排名快照
// 排序规则: 价格升序，价格完全相同时按 TokenID 字典序升序，
// 保证在任何输入顺序下都得到同一全序（排列不变性）。
// Rank 按位置赋值为 1..N（最便宜为 1），每次轮询全量重建。
// 参数 listings: 去重后的 token -> 挂单 映射
// 参数 capturedAt: 快照采集时间
func Build(listings map[string]model.Listing, capturedAt time.Time) *model.Snapshot {
	ordered := make([]model.Listing, 0, len(listings))
	for _, row := range listings {
		ordered = append(ordered, row)
	}

	sort.Slice(ordered, func(i, j int) bool {
		switch ordered[i].PriceMon.Cmp(ordered[j].PriceMon) {
		case -1:
			return true
		case 1:
			return false
		}
		return ordered[i].TokenID < ordered[j].TokenID
	})

	for i := range ordered {
		ordered[i].Rank = i + 1
	}

	return &model.Snapshot{
		CapturedAt: timeutil.FormatISO(capturedAt),
		Listings:   ordered,
	}
}
