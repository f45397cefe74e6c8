package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// 單次寫入允許的時間
	writeWait = 10 * time.Second

	// 單則訊息大小上限
	maxMessageSize = 4096

	// 每個連接的發送緩衝
	sendBufferSize = 256
)

// Hub WebSocket 傳輸層
//
// 只負責連接的升級與讀寫泵，所有協定語意（房間、路由、活性簿記）
// 都在 Relay。讀泵把訊框交給 Relay 分派，寫泵消化發送緩衝並按
// 監視器的要求發出 Ping 控制幀。
type Hub struct {
	relay    *Relay
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHub 建立傳輸層
func NewHub(relay *Relay, logger *slog.Logger) *Hub {
	return &Hub{
		relay:  relay,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
		},
	}
}

// ServeWS 把 HTTP 請求升級為 WebSocket 連接
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		pingCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	client.conn = h.relay.Register(client)

	go client.writePump()
	go client.readPump()
}

// Client 單個 WebSocket 客戶端
type Client struct {
	hub    *Hub
	ws     *websocket.Conn
	conn   *Connection   // 中繼持有的狀態記錄
	send   chan []byte   // 出站訊息緩衝
	pingCh chan struct{} // 監視器的探測請求
	done   chan struct{}

	closeOnce sync.Once
}

// Send 實作 Peer：推入發送緩衝，緩衝滿時丟棄（不阻塞處理器）
func (c *Client) Send(message []byte) {
	if !c.IsOpen() {
		return
	}
	select {
	case c.send <- message:
	default:
		c.hub.logger.Warn("連接發送緩衝已滿，丟棄訊息",
			"conn_id", c.conn.ID,
			"player_id", c.conn.PlayerID)
	}
}

// Ping 實作 Peer：請求寫泵發送一個 Ping 控制幀
func (c *Client) Ping() {
	select {
	case c.pingCh <- struct{}{}:
	default:
	}
}

// IsOpen 實作 Peer
func (c *Client) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Terminate 實作 Peer：強制關閉底層連接
func (c *Client) Terminate() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.ws.Close(); err != nil {
			c.hub.logger.Debug("關閉連接失敗", "error", err, "conn_id", c.conn.ID)
		}
	})
}

// readPump 從連接讀取訊框交給中繼分派
//
// Pong 處理器是傳輸層活性確認的入口：收到 Pong 即重置中繼裡的
// 活性狀態。讀取不設期限：死連接由健康監視器終止，終止會讓
// 這裡的 ReadMessage 出錯返回，走與對端關閉相同的斷線路徑。
func (c *Client) readPump() {
	defer func() {
		c.hub.relay.Disconnect(c.conn)
		c.Terminate()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.hub.relay.ConfirmAlive(c.conn)
		return nil
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.conn.ID,
					"player_id", c.conn.PlayerID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.hub.relay.HandleMessage(c.conn, data)
		}
	}
}

// writePump 把發送緩衝與探測請求寫到連接
func (c *Client) writePump() {
	defer c.Terminate()

	for {
		select {
		case message := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-c.pingCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
