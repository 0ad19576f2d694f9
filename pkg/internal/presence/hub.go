package presence

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	nlog "github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/metrics"
	"github.com/yeisme/tmvault/pkg/queue"
	"github.com/yeisme/tmvault/pkg/tracing"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// clientMessage 客户端上行消息，仅支持心跳.
type clientMessage struct {
	Action string `json:"action"` // heartbeat | ping
}

// client 一个 WebSocket 连接.
type client struct {
	hub    *Hub
	fileID int64
	holder Holder
	conn   *websocket.Conn
	send   chan []byte
}

// fileTopic 一个文件主题的订阅与其客户端.
type fileTopic struct {
	cancel  context.CancelFunc
	clients map[*client]struct{}
}

// Hub 把 tv.presence.file.<id> 主题上的事件扇出到订阅该文件的 WebSocket 客户端.
// 第一个客户端连接时订阅主题，最后一个断开时取消订阅.
type Hub struct {
	sub      message.Subscriber
	tracker  *Tracker
	upgrader websocket.Upgrader

	mu     sync.Mutex
	topics map[int64]*fileTopic
	ctx    context.Context
	cancel context.CancelFunc
}

// HubOption 配置 Hub.
type HubOption func(*Hub)

// WithTracker 连接时登记查看者，断开时移除，心跳消息刷新.
func WithTracker(t *Tracker) HubOption {
	return func(h *Hub) { h.tracker = t }
}

// WithCheckOrigin 设置跨域校验，nil 使用 gorilla 的同源校验.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// NewHub 创建推送中心.
func NewHub(sub message.Subscriber, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		sub:      sub,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		topics:   make(map[int64]*fileTopic),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Serve 升级连接并订阅文件事件，阻塞直到连接的读循环结束.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, fileID int64, holder Holder) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{hub: h, fileID: fileID, holder: holder, conn: conn, send: make(chan []byte, sendBuffer)}

	if err := h.register(c); err != nil {
		_ = conn.Close()
		return err
	}

	if h.tracker != nil {
		if _, err := h.tracker.Join(r.Context(), fileID, holder); err != nil {
			nlog.Logger().Warn().Err(err).Int64("file_id", fileID).Msg("presence join failed")
		}
	}

	go c.writePump()
	c.readPump()

	return nil
}

// Clients 返回文件当前的连接数.
func (h *Hub) Clients(fileID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[fileID]; ok {
		return len(t.clients)
	}

	return 0
}

// Close 取消全部订阅并断开客户端.
func (h *Hub) Close() error {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, t := range h.topics {
		t.cancel()

		for c := range t.clients {
			close(c.send)
		}

		delete(h.topics, id)
	}

	h.gauge()

	return nil
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.topics[c.fileID]; ok {
		t.clients[c] = struct{}{}
		h.gauge()

		return nil
	}

	ctx, cancel := context.WithCancel(h.ctx)

	msgs, err := h.sub.Subscribe(ctx, queue.PresenceTopic(c.fileID))
	if err != nil {
		cancel()
		return err
	}

	h.topics[c.fileID] = &fileTopic{cancel: cancel, clients: map[*client]struct{}{c: {}}}
	h.gauge()

	go h.forward(c.fileID, msgs)

	return nil
}

// gauge 更新连接数指标，调用方持有 h.mu.
func (h *Hub) gauge() {
	n := 0
	for _, t := range h.topics {
		n += len(t.clients)
	}

	metrics.PresenceConnections.Set(float64(n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[c.fileID]
	if !ok {
		return
	}

	if _, ok := t.clients[c]; !ok {
		return
	}

	delete(t.clients, c)
	close(c.send)

	if len(t.clients) == 0 {
		t.cancel()
		delete(h.topics, c.fileID)
	}

	h.gauge()
}

// forward 把主题消息原样（JSON 信封）推给该文件的全部客户端.
func (h *Hub) forward(fileID int64, msgs <-chan *message.Message) {
	for m := range msgs {
		_, span := tracing.StartSpan(queue.SpanContext(context.Background(), m), "presence.forward",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.Int64("file.id", fileID)),
		)

		h.mu.Lock()

		if t, ok := h.topics[fileID]; ok {
			span.SetAttributes(attribute.Int("ws.clients", len(t.clients)))

			for c := range t.clients {
				select {
				case c.send <- m.Payload:
				default:
					// 发送缓冲已满，断开慢客户端
					delete(t.clients, c)
					close(c.send)
				}
			}

			if len(t.clients) == 0 {
				t.cancel()
				delete(h.topics, fileID)
			}
		}

		h.gauge()
		h.mu.Unlock()
		m.Ack()
		span.End()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()

		if c.hub.tracker != nil {
			if err := c.hub.tracker.Leave(context.Background(), c.fileID, c.holder.SessionID); err != nil {
				nlog.Logger().Warn().Err(err).Int64("file_id", c.fileID).Msg("presence leave failed")
			}
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				nlog.Logger().Debug().Err(err).Int64("file_id", c.fileID).Msg("websocket read error")
			}

			return
		}

		var msg clientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Action == "heartbeat" && c.hub.tracker != nil {
			_, _ = c.hub.tracker.Join(context.Background(), c.fileID, c.holder)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
