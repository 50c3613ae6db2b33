// Package server 实现 dashboard HTTP API 与 WebSocket 推送。
// 服务路径与轮询路径共享估值缓存；缓存内部自带锁，可并发访问。
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"neverland-monitor/internal/config"
	"neverland-monitor/internal/core/discount"
	"neverland-monitor/internal/core/model"
	"neverland-monitor/internal/core/rank"
	"neverland-monitor/internal/marketplace"
	"neverland-monitor/internal/valuation"
)

// Ranking 折扣排名响应
// GET /api/snapshot 的公共部分
type Ranking struct {
	// CapturedAt 构建时间（Unix 秒）
	CapturedAt int64 `json:"captured_at"`
	// Slug OpenSea 集合标识
	Slug string `json:"slug"`
	// Prices 估值报价对
	Prices model.Quotes `json:"prices"`
	// UsingFallbackSource 是否有报价处于回退状态
	UsingFallbackSource bool `json:"using_fallback_source"`
	// FallbackFields 处于回退状态的报价字段
	FallbackFields []string `json:"fallback_fields"`
	// TotalListings 折扣排名条数
	TotalListings int `json:"total_listings"`
	// Listings 折扣排名列表
	Listings []model.DiscountListing `json:"listings"`
}

// walletView 钱包视角的折扣排名响应
type walletView struct {
	Ranking
	// Wallet 首个受监控钱包（兼容单钱包客户端）
	Wallet string `json:"wallet"`
	// Wallets 全部受监控钱包
	Wallets []string `json:"wallets"`
	// TrackedWalletCount 受监控钱包数量
	TrackedWalletCount int `json:"tracked_wallet_count"`
	// MyListingCount 自己的挂单数量
	MyListingCount int `json:"my_listing_count"`
	// MyBestRank 自己的最好折扣名次，无挂单时为 null
	MyBestRank *int `json:"my_best_rank"`
	// MyWorstRank 自己的最差折扣名次，无挂单时为 null
	MyWorstRank *int `json:"my_worst_rank"`
	// MyListings 自己的挂单列表
	MyListings []model.DiscountListing `json:"my_listings"`
	// Threats 威胁列表（紧邻上一名不属于监控集合的挂单）
	Threats []discount.Threat `json:"threats"`
}

// Server dashboard 服务
type Server struct {
	// cfg 服务配置
	cfg config.ServerConfig
	// marketCfg 挂单列表 API 配置（slug/limit/max_pages 默认值）
	marketCfg config.MarketplaceConfig
	// market 挂单列表客户端
	market *marketplace.Client
	// quotes 报价缓存
	quotes *valuation.QuoteCache
	// meta 锁定数量缓存
	meta *valuation.MetadataCache
	// hub WebSocket 推送中心
	hub *hub
	// mux 路由
	mux *http.ServeMux
	// logger 日志记录器
	logger *zap.Logger
}

// New 创建 dashboard 服务
// 参数 cfg: 服务配置
// 参数 marketCfg: 挂单列表 API 配置
// 参数 market: 挂单列表客户端
// 参数 quotes: 报价缓存
// 参数 meta: 锁定数量缓存
// 参数 logger: 日志记录器
func New(
	cfg config.ServerConfig,
	marketCfg config.MarketplaceConfig,
	market *marketplace.Client,
	quotes *valuation.QuoteCache,
	meta *valuation.MetadataCache,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		marketCfg: marketCfg,
		market:    market,
		quotes:    quotes,
		meta:      meta,
		hub:       newHub(logger.Named("ws")),
		mux:       http.NewServeMux(),
		logger:    logger.Named("server"),
	}
	s.routes()
	go s.hub.run()
	return s
}

// Handler 获取 HTTP 路由
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() {
	s.mux.HandleFunc("/api/snapshot", s.apiSnapshot)
	s.mux.HandleFunc("/health", s.apiHealth)
	s.mux.HandleFunc("/ws", s.hub.serveWS)
}

// BroadcastEvent 向所有已连接的 dashboard 推送一条变更事件
// 参数 ev: 变更事件
// 参数 message: 已渲染的文案
func (s *Server) BroadcastEvent(ev model.ChangeEvent, message string) {
	s.hub.broadcast(marshalWS("event", map[string]any{
		"event":   ev,
		"message": message,
	}))
}

// BroadcastStatus 向所有已连接的 dashboard 推送轮询状态
// 参数 capturedAt: 快照采集时间（ISO-8601）
// 参数 totalListings: 快照挂单数量
// 参数 emitted: 本轮发出的事件数量
func (s *Server) BroadcastStatus(capturedAt string, totalListings, emitted int) {
	s.hub.broadcast(marshalWS("status", map[string]any{
		"captured_at":    capturedAt,
		"total_listings": totalListings,
		"emitted":        emitted,
	}))
}

// BuildRanking 构建折扣排名
// 拉取挂单 -> 规范化去重 -> 价格排名 -> 报价（含回退）->
// 批量锁定数量 -> 折扣排名
// 参数 slug: OpenSea 集合标识
// 参数 limit: 每页条数
// 参数 maxPages: 页数上限
func (s *Server) BuildRanking(ctx context.Context, slug string, limit, maxPages int) (*Ranking, error) {
	rows, err := s.market.FetchAll(ctx, slug, limit, maxPages)
	if err != nil {
		return nil, err
	}
	snap := rank.Build(marketplace.Normalize(rows), time.Now())

	quotes, fallbackFields, err := s.quotes.Get(ctx)
	if err != nil {
		return nil, err
	}

	tokenIDs := make([]string, 0, len(snap.Listings))
	for _, row := range snap.Listings {
		tokenIDs = append(tokenIDs, row.TokenID)
	}
	lockedByToken := s.meta.GetMany(ctx, tokenIDs)

	listings := discount.Build(snap, quotes, lockedByToken)
	if fallbackFields == nil {
		fallbackFields = []string{}
	}
	return &Ranking{
		CapturedAt:          time.Now().Unix(),
		Slug:                slug,
		Prices:              quotes,
		UsingFallbackSource: len(fallbackFields) > 0,
		FallbackFields:      fallbackFields,
		TotalListings:       len(listings),
		Listings:            listings,
	}, nil
}

// apiSnapshot 处理 GET /api/snapshot
// 查询参数: wallet/wallets（必填，至少一个合法 0x 地址）、
// slug、limit、max_pages（可选，缺省取配置值）
func (s *Server) apiSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.writeCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	params := r.URL.Query()
	wallets := extractWallets(params)
	if len(wallets) == 0 {
		s.writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "wallet/wallets query param must contain at least one valid 0x address"})
		return
	}

	slug := strings.TrimSpace(params.Get("slug"))
	if slug == "" {
		slug = s.marketCfg.Slug
	}
	limit, maxPages := s.marketCfg.Limit, s.marketCfg.MaxPages
	var err error
	if raw := params.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit and max_pages must be integers"})
			return
		}
	}
	if raw := params.Get("max_pages"); raw != "" {
		if maxPages, err = strconv.Atoi(raw); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit and max_pages must be integers"})
			return
		}
	}

	ranking, err := s.BuildRanking(r.Context(), slug, limit, maxPages)
	if err != nil {
		s.logger.Warn("构建折扣排名失败", zap.Error(err))
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "snapshot_failed: " + err.Error()})
		return
	}

	walletSet := make(map[string]bool, len(wallets))
	for _, wallet := range wallets {
		walletSet[wallet] = true
	}

	mine := make([]model.DiscountListing, 0)
	var bestRank, worstRank *int
	for _, row := range ranking.Listings {
		if !walletSet[row.Seller] {
			continue
		}
		mine = append(mine, row)
		myRank := row.RankDiscount
		if bestRank == nil || myRank < *bestRank {
			v := myRank
			bestRank = &v
		}
		if worstRank == nil || myRank > *worstRank {
			v := myRank
			worstRank = &v
		}
	}
	threats := discount.Threats(ranking.Listings, walletSet)
	if threats == nil {
		threats = []discount.Threat{}
	}

	s.writeJSON(w, http.StatusOK, walletView{
		Ranking:            *ranking,
		Wallet:             wallets[0],
		Wallets:            wallets,
		TrackedWalletCount: len(wallets),
		MyListingCount:     len(mine),
		MyBestRank:         bestRank,
		MyWorstRank:        worstRank,
		MyListings:         mine,
		Threats:            threats,
	})
}

// apiHealth 处理 GET /health
func (s *Server) apiHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// isWallet 判断是否为合法 0x 钱包地址
func isWallet(value string) bool {
	return strings.HasPrefix(value, "0x") && len(value) == 42
}

// extractWallets 从查询参数提取钱包地址列表
// 接受 wallet 与 wallets 两个参数名；支持逗号、分号、换行分隔；
// 统一小写、校验 0x 格式并按出现顺序去重
func extractWallets(params url.Values) []string {
	var rawParts []string
	rawParts = append(rawParts, params["wallet"]...)
	rawParts = append(rawParts, params["wallets"]...)
	if len(rawParts) == 0 {
		return nil
	}

	var cleaned []string
	seen := make(map[string]bool)
	for _, part := range rawParts {
		chunk := strings.NewReplacer("\n", ",", ";", ",").Replace(part)
		for _, item := range strings.Split(chunk, ",") {
			wallet := strings.ToLower(strings.TrimSpace(item))
			if wallet == "" || !isWallet(wallet) || seen[wallet] {
				continue
			}
			seen[wallet] = true
			cleaned = append(cleaned, wallet)
		}
	}
	return cleaned
}

func (s *Server) writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("序列化响应失败", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.writeCORS(w)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
