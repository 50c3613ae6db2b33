package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait 单次写入超时
	writeWait = 10 * time.Second
	// pongWait 等待 pong 的最长时间
	pongWait = 60 * time.Second
	// pingPeriod ping 发送间隔，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10
	// clientSendBuffer 单个连接的发送队列长度
	clientSendBuffer = 64
)

// upgrader WebSocket 升级器
// dashboard 是本地/内网工具，放开跨源检查
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// wsMessage 推送消息信封
type wsMessage struct {
	// Type 消息类型: event, status
	Type string `json:"type"`
	// Data 消息内容
	Data any `json:"data"`
	// Ts 推送时间（Unix 秒）
	Ts int64 `json:"ts"`
}

// marshalWS 序列化一条推送消息
// 序列化失败时返回 nil，广播端会跳过
func marshalWS(msgType string, data any) []byte {
	payload, err := json.Marshal(wsMessage{
		Type: msgType,
		Data: data,
		Ts:   time.Now().Unix(),
	})
	if err != nil {
		return nil
	}
	return payload
}

// client 单个 WebSocket 连接
type client struct {
	conn *websocket.Conn
	// send 待发送消息队列，hub 写入、writePump 消费
	send chan []byte
}

// hub WebSocket 连接管理中心
// 所有连接状态变更都在 run 协程中串行处理
type hub struct {
	// clients 当前活跃连接
	clients map[*client]bool
	// register 新连接注册通道
	register chan *client
	// unregister 连接注销通道
	unregister chan *client
	// messages 待广播消息通道
	messages chan []byte
	// logger 日志记录器
	logger *zap.Logger
}

// newHub 创建连接管理中心
func newHub(logger *zap.Logger) *hub {
	return &hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		messages:   make(chan []byte, 256),
		logger:     logger,
	}
}

// run 事件循环
// 处理连接注册、注销和消息广播；发送队列已满的慢连接直接踢除
func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("dashboard 连接建立", zap.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.logger.Debug("dashboard 连接断开", zap.Int("clients", len(h.clients)))
			}
		case msg := <-h.messages:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Debug("dashboard 连接发送队列已满，踢除")
				}
			}
		}
	}
}

// broadcast 向所有连接广播一条消息
// msg 为 nil 时忽略
func (h *hub) broadcast(msg []byte) {
	if msg == nil {
		return
	}
	select {
	case h.messages <- msg:
	default:
		h.logger.Warn("广播队列已满，丢弃消息")
	}
}

// serveWS 处理 GET /ws，升级为 WebSocket 连接
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

// readPump 读取循环
// dashboard 客户端不发送业务消息，只用于探测连接断开
func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 写入循环
// 消费发送队列并定期发送 ping 保活
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
