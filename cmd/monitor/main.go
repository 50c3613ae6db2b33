// Package main 是 Neverland OpenSea 挂单监控器的入口点。
// 监控器周期性拉取集合挂单，按价格重建排名，与上一轮快照对比生成
// 变更事件（前 N 名重排、钱包挂单变化、被压单），经去重台账过滤后
// 投递告警；可选启动 dashboard HTTP/WebSocket 服务。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"neverland-monitor/internal/config"
	"neverland-monitor/internal/core/diff"
	"neverland-monitor/internal/core/ledger"
	"neverland-monitor/internal/core/model"
	"neverland-monitor/internal/core/rank"
	"neverland-monitor/internal/marketplace"
	"neverland-monitor/internal/notify"
	"neverland-monitor/internal/output/jsonl"
	"neverland-monitor/internal/server"
	"neverland-monitor/internal/util/timeutil"
	"neverland-monitor/internal/valuation"
)

// eventRecord events.jsonl 中的一条记录
type eventRecord struct {
	// EmittedAt 发出时间（ISO-8601）
	EmittedAt string `json:"emitted_at"`
	// Message 渲染后的文案
	Message string `json:"message"`
	// Event 原始事件
	Event model.ChangeEvent `json:"event"`
}

// monitor 轮询监控器
// 聚合一轮轮询所需的全部组件；所有状态修改都发生在单个轮询协程内
type monitor struct {
	cfg        *config.Config
	wallets    map[string]bool
	market     *marketplace.Client
	ledger     *ledger.Ledger
	state      *ledger.State
	dispatcher *notify.Dispatcher
	events     *jsonl.Writer
	srv        *server.Server
	logger     *zap.Logger
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 缺失不是错误，webhook 等密钥也可以直接来自进程环境
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if url := os.Getenv("DISCORD_WEBHOOK_URL"); url != "" {
		cfg.Notify.DiscordWebhookURL = url
	}

	logger := newLogger(cfg.App.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出；进行中的一轮会完成并持久化
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	market := marketplace.NewClient(
		cfg.Marketplace.BaseURL, cfg.Marketplace.TimeoutMs, cfg.Marketplace.Retries, logger)

	led := ledger.New(cfg.Monitor.StateFile, logger)
	state := led.Load()
	if state.LastSnapshot != nil {
		logger.Info("已加载上一轮快照",
			zap.String("captured_at", state.LastSnapshot.CapturedAt),
			zap.Int("listings", len(state.LastSnapshot.Listings)),
			zap.Int("seen_events", len(state.SeenEvents)))
	}

	var eventsWriter *jsonl.Writer
	if cfg.Output.EventsEnabled {
		eventsWriter, err = jsonl.NewWriter(fmt.Sprintf("%s/events.jsonl", cfg.Output.Dir))
		if err != nil {
			logger.Error("创建 events writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		OnUndercutCmd:     cfg.Notify.OnUndercutCmd,
		OnRankChangeCmd:   cfg.Notify.OnRankChangeCmd,
		NotifyMac:         cfg.Notify.NotifyMac,
	}, logger)

	// dashboard 服务与轮询共用挂单客户端，估值缓存只在服务路径使用
	var srv *server.Server
	var httpSrv *http.Server
	if cfg.Server.Enabled {
		fetcher := valuation.NewHTTPFetcher(
			cfg.Valuation.DustTokenURL,
			cfg.Valuation.VedustURLTemplate,
			cfg.Valuation.CoingeckoURLs,
			cfg.Valuation.LlamaURL,
			cfg.Valuation.TimeoutMs,
		)
		quotes := valuation.NewQuoteCache(
			fetcher, time.Duration(cfg.Valuation.QuoteTTLSeconds)*time.Second, nil, logger)
		meta := valuation.NewMetadataCache(
			fetcher, time.Duration(cfg.Valuation.MetadataTTLSeconds)*time.Second,
			cfg.Valuation.MaxWorkers, nil, logger)

		srv = server.New(cfg.Server, cfg.Marketplace, market, quotes, meta, logger)
		httpSrv = &http.Server{Addr: cfg.Server.Addr, Handler: srv.Handler()}
		go func() {
			logger.Info("dashboard 服务启动", zap.String("addr", cfg.Server.Addr))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("dashboard 服务退出", zap.Error(err))
			}
		}()
	}

	m := &monitor{
		cfg:        cfg,
		wallets:    cfg.WalletSet(),
		market:     market,
		ledger:     led,
		state:      state,
		dispatcher: dispatcher,
		events:     eventsWriter,
		srv:        srv,
		logger:     logger,
	}

	logger.Info("监控启动",
		zap.String("slug", cfg.Marketplace.Slug),
		zap.Int("poll_seconds", cfg.Monitor.PollSeconds),
		zap.Int("top_n", cfg.Monitor.TopN),
		zap.Int("wallets", len(m.wallets)))

	m.run(ctx)

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if eventsWriter != nil {
		_ = eventsWriter.Close()
	}
	logger.Info("关闭完成")
}

// run 轮询主循环
// 单轮失败只记录日志并等待下一轮；once 模式只跑一轮
func (m *monitor) run(ctx context.Context) {
	interval := time.Duration(m.cfg.Monitor.PollSeconds) * time.Second

	for {
		if err := m.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("本轮轮询失败", zap.Error(err))
		}

		if m.cfg.Monitor.Once {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// runCycle 执行一轮轮询
// 拉取 -> 规范化 -> 排名 -> 对比 -> 去重 -> 投递 -> 持久化
func (m *monitor) runCycle(ctx context.Context) error {
	rows, err := m.market.FetchAll(
		ctx, m.cfg.Marketplace.Slug, m.cfg.Marketplace.Limit, m.cfg.Marketplace.MaxPages)
	if err != nil {
		return fmt.Errorf("拉取挂单失败: %w", err)
	}

	snap := rank.Build(marketplace.Normalize(rows), timeutil.NowUTC())
	m.printTop(snap)

	var events []model.ChangeEvent
	if m.state.LastSnapshot == nil {
		m.logger.Info("首轮快照已建立基线，本轮不产生事件",
			zap.Int("listings", len(snap.Listings)))
	} else {
		events = diff.Diff(m.state.LastSnapshot, snap, m.wallets, diff.Config{
			TopN:        m.cfg.Monitor.TopN,
			MinUndercut: decimal.NewFromFloat(m.cfg.Monitor.MinUndercutMon),
		})
	}

	emitted := 0
	for _, ev := range events {
		if !m.state.ShouldEmit(ev.EventID) {
			continue
		}
		now := timeutil.NowISO()
		message := notify.Render(ev)

		m.logger.Info("发出变更事件",
			zap.String("event_type", string(ev.Type)),
			zap.String("event_id", ev.EventID),
			zap.String("message", message))

		if m.events != nil {
			if err := m.events.Write(eventRecord{EmittedAt: now, Message: message, Event: ev}); err != nil {
				m.logger.Warn("写入事件记录失败", zap.Error(err))
			}
			_ = m.events.Flush()
		}
		m.dispatcher.Dispatch(ev, message)
		if m.srv != nil {
			m.srv.BroadcastEvent(ev, message)
		}

		m.state.Record(ev.EventID, now)
		emitted++
	}
	if len(events) > 0 && emitted == 0 {
		m.logger.Info("检测到变更，但全部事件此前已发出过", zap.Int("events", len(events)))
	}

	m.state.LastSnapshot = snap
	if err := m.ledger.Save(m.state); err != nil {
		m.logger.Warn("持久化状态失败", zap.Error(err))
	}

	if m.srv != nil {
		m.srv.BroadcastStatus(snap.CapturedAt, len(snap.Listings), emitted)
	}

	m.logger.Info("本轮轮询完成",
		zap.Int("listings", len(snap.Listings)),
		zap.Int("events", len(events)),
		zap.Int("emitted", emitted))
	return nil
}

// printTop 打印当前快照的前 K 名
func (m *monitor) printTop(snap *model.Snapshot) {
	k := m.cfg.Monitor.PrintTop
	if k <= 0 {
		return
	}
	if k > len(snap.Listings) {
		k = len(snap.Listings)
	}
	for _, row := range snap.Listings[:k] {
		m.logger.Info("当前排名",
			zap.Int("rank", row.Rank),
			zap.String("token_id", row.TokenID),
			zap.String("price_mon", model.FormatMon(row.PriceMon)),
			zap.String("seller", row.Seller))
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
