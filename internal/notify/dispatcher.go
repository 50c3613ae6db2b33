// Package notify 实现告警文案渲染与外部投递。
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"neverland-monitor/internal/core/model"
)

// discordMaxLen Discord 消息长度上限（留余量）
const discordMaxLen = 1900

// notifyTitle 桌面通知标题
const notifyTitle = "Neverland OpenSea Monitor"

// Config 投递配置
type Config struct {
	// DiscordWebhookURL Discord webhook 地址，为空则不投递
	DiscordWebhookURL string
	// OnUndercutCmd undercut 事件触发的外部命令，为空则不执行
	OnUndercutCmd string
	// OnRankChangeCmd rank_change 事件触发的外部命令，为空则不执行
	OnRankChangeCmd string
	// NotifyMac 是否通过 osascript 发送 macOS 桌面通知
	NotifyMac bool
}

// Dispatcher 告警投递器
// 投递失败只记录日志，不重试、不向上传播：事件 ID 的生成是恰好一次，
// 对外投递不承诺恰好一次。
type Dispatcher struct {
	// cfg 投递配置
	cfg Config
	// client HTTP 客户端（webhook 用）
	client *http.Client
	// logger 日志记录器
	logger *zap.Logger
}

// NewDispatcher 创建告警投递器
// 参数 cfg: 投递配置
// 参数 logger: 日志记录器
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("notify"),
	}
}

// Dispatch 投递一条事件
// 依次执行 Discord webhook、桌面通知与按事件类型配置的外部命令
// 参数 ev: 变更事件
// 参数 message: 已渲染的文案
func (d *Dispatcher) Dispatch(ev model.ChangeEvent, message string) {
	d.postDiscord(message)
	if d.cfg.NotifyMac {
		d.macNotify(message)
	}
	switch ev.Type {
	case model.EventUndercut:
		d.runEventCommand(d.cfg.OnUndercutCmd, ev)
	case model.EventTopRankChange:
		d.runEventCommand(d.cfg.OnRankChangeCmd, ev)
	}
}

// postDiscord 向 Discord webhook 投递文案
func (d *Dispatcher) postDiscord(message string) {
	if d.cfg.DiscordWebhookURL == "" {
		return
	}
	if len(message) > discordMaxLen {
		message = message[:discordMaxLen]
	}

	payload, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		d.logger.Warn("序列化 Discord 消息失败", zap.Error(err))
		return
	}
	resp, err := d.client.Post(d.cfg.DiscordWebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		d.logger.Warn("Discord webhook 投递失败", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Warn("Discord webhook 返回异常状态", zap.Int("status", resp.StatusCode))
	}
}

// macNotify 通过 osascript 发送 macOS 桌面通知
func (d *Dispatcher) macNotify(message string) {
	escaped := escapeAppleScript(message)
	title := escapeAppleScript(notifyTitle)
	script := fmt.Sprintf("display notification \"%s\" with title \"%s\"", escaped, title)
	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		d.logger.Warn("macOS 桌面通知失败", zap.Error(err))
	}
}

// runEventCommand 执行事件触发的外部命令
// 事件 JSON 通过 MONITOR_EVENT_JSON 环境变量传入，
// 事件类型通过 MONITOR_EVENT_TYPE 传入
func (d *Dispatcher) runEventCommand(cmdLine string, ev model.ChangeEvent) {
	if cmdLine == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		d.logger.Warn("序列化事件失败", zap.Error(err))
		return
	}

	cmd := exec.Command("sh", "-c", cmdLine)
	cmd.Env = append(os.Environ(),
		"MONITOR_EVENT_JSON="+string(data),
		"MONITOR_EVENT_TYPE="+string(ev.Type),
	)
	if err := cmd.Run(); err != nil {
		d.logger.Warn("事件命令执行失败",
			zap.String("event_type", string(ev.Type)),
			zap.Error(err))
	}
}

// escapeAppleScript 转义 AppleScript 字符串中的反斜杠与双引号
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}
