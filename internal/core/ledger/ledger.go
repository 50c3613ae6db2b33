// Package ledger 实现监控状态的持久化与事件去重台账。
// 状态文件保存上一轮排名快照与已发出事件 ID 集合，保证进程重启后
// 不会对已告警过的变更重复告警。
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"neverland-monitor/internal/core/model"
)

// maxSeenEvents 已发出事件 ID 的保留上限
// 超限时保留字典序最大的 maxSeenEvents 个键。注意：事件 ID 并非按时间
// 有序的字符串，该策略只是“最近事件”的近似，与既有状态文件保持兼容。
const maxSeenEvents = 5000

// State 持久化状态
// 每轮轮询结束后写回，加载一次、进程内修改
type State struct {
	// LastSnapshot 上一轮排名快照，首次运行时为 null
	LastSnapshot *model.Snapshot `json:"last_snapshot"`
	// SeenEvents 已发出事件 ID -> 首次发出时间（ISO-8601）
	SeenEvents map[string]string `json:"seen_events"`
}

// ShouldEmit 判断事件是否应该发出
// 返回 true 当且仅当该事件 ID 尚未出现在台账中
func (s *State) ShouldEmit(eventID string) bool {
	_, seen := s.SeenEvents[eventID]
	return !seen
}

// Record 记录已发出的事件
// 幂等：重复记录保留首次时间戳
// 参数 eventID: 事件 ID
// 参数 emittedAt: 首次发出时间（ISO-8601）
func (s *State) Record(eventID, emittedAt string) {
	if _, seen := s.SeenEvents[eventID]; seen {
		return
	}
	s.SeenEvents[eventID] = emittedAt
}

// Ledger 状态文件读写器
type Ledger struct {
	// path 状态文件路径
	path string
	// logger 日志记录器
	logger *zap.Logger
}

// New 创建状态文件读写器
// 参数 path: 状态文件路径
// 参数 logger: 日志记录器
func New(path string, logger *zap.Logger) *Ledger {
	return &Ledger{
		path:   path,
		logger: logger.Named("ledger"),
	}
}

// Load 加载持久化状态
// 文件缺失或损坏时返回空初始状态并记录日志，绝不视为致命错误。
func (l *Ledger) Load() *State {
	empty := &State{SeenEvents: make(map[string]string)}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("读取状态文件失败，按空状态处理", zap.Error(err))
		}
		return empty
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		l.logger.Warn("状态文件损坏，按空状态处理", zap.Error(err))
		return empty
	}
	if st.SeenEvents == nil {
		st.SeenEvents = make(map[string]string)
	}
	return &st
}

// Save 持久化状态
// 写入前对已发出事件做上限裁剪；写失败返回错误由调用方记录，
// 下一轮会重新尝试（至少一次持久化，非事务性）。
func (l *Ledger) Save(st *State) error {
	evictSeenEvents(st)

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建状态目录失败: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("写入状态文件失败: %w", err)
	}
	return nil
}

// evictSeenEvents 裁剪已发出事件集合
// 超过上限时只保留字典序最大的 maxSeenEvents 个键
func evictSeenEvents(st *State) {
	if len(st.SeenEvents) <= maxSeenEvents {
		return
	}
	keys := make([]string, 0, len(st.SeenEvents))
	for k := range st.SeenEvents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	trimmed := make(map[string]string, maxSeenEvents)
	for _, k := range keys[len(keys)-maxSeenEvents:] {
		trimmed[k] = st.SeenEvents[k]
	}
	st.SeenEvents = trimmed
}
