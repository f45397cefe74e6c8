package internal

import (
	"time"

	"github.com/google/uuid"
)

// Peer 傳輸層句柄
//
// 把傳輸層抽象成最小介面，讓中繼的簿記（房間、身份、活性）與
// WebSocket 函式庫的物件模型解耦，測試時也能用假的對端替代真連接。
type Peer interface {
	// Send 發送一則訊息，盡力而為、不等待結果
	Send(message []byte)

	// Ping 發送傳輸層活性探測（WebSocket Ping 控制幀）
	Ping()

	// IsOpen 回報連接是否仍然開啟
	IsOpen() bool

	// Terminate 強制關閉連接
	Terminate()
}

// Connection 單個客戶端連接的狀態記錄
//
// 中繼擁有這份記錄，傳輸句柄只以引用方式持有，房間歸屬與活性欄位
// 不掛在 socket 物件上。所有可變欄位都由 Relay 的鎖保護。
//
// 不變量：Room 非空若且唯若該連接完成過 join 且尚未離開或被剔除；
// Room 為空時 PlayerID 沒有意義。
type Connection struct {
	ID   string // 穩定的連接識別碼（與玩家身份無關）
	Peer Peer

	Room       string
	PlayerID   string
	PlayerName string

	IsAlive       bool      // 活性旗標，探測週期內由 pong 或心跳重置
	LastHeartbeat time.Time // 最近一次活性信號的時間
}

// newConnection 建立連接記錄，初始狀態視為存活
func newConnection(peer Peer) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		Peer:          peer,
		IsAlive:       true,
		LastHeartbeat: time.Now(),
	}
}
