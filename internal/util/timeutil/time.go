// Package timeutil 提供时间相关的工具函数。
// 主要用于生成状态文件与事件台账中的 ISO-8601 UTC 时间戳。
package timeutil

import (
	"time"
)

// ISOLayout ISO-8601 秒级精度格式
// 示例: 2026-03-01T12:00:05Z
const ISOLayout = "2006-01-02T15:04:05Z07:00"

// NowUTC 获取当前 UTC 时间（截断到秒）
// 返回: 当前时间的 time.Time 对象
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FormatISO 将时间格式化为 ISO-8601 UTC 字符串
// 参数 t: 待格式化的时间
// 返回: 秒级精度的 ISO-8601 字符串
func FormatISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(ISOLayout)
}

// NowISO 获取当前时间的 ISO-8601 UTC 字符串
// 返回: 秒级精度的 ISO-8601 字符串
func NowISO() string {
	return FormatISO(time.Now())
}

// ParseISO 解析 ISO-8601 时间字符串
// 参数 s: 待解析的字符串
// 返回: 解析后的时间和可能的错误
func ParseISO(s string) (time.Time, error) {
	return time.Parse(ISOLayout, s)
}
