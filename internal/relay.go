package internal

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   同一場遊戲的多個客戶端如何交換即時狀態（位置、分數、大廳準備狀態），
//   而彼此之間不需要知道對方的存在？
//
// 核心挑戰：
//   1. 房間生命週期：房間隨第一個 join 產生、隨最後一個成員離開消失
//   2. 訊息路由：按 type 分派到對應處理器，未知類型不能影響連接
//   3. 廣播一致性：轉發時排除發送者，且不能被處理器中途的成員變動干擾
//   4. 序列化紀律：check-then-act（成員空了才刪房間）不能被交錯的變動打斷
//
// 設計方案：
//   ✅ 單一 Relay 實例擁有全部註冊表狀態，啟動時建立、關閉時銷毀
//   ✅ 互斥鎖串行化每個處理器，處理器本體不做阻塞呼叫（發送只是
//     緩衝 channel 的推入），等效於單執行緒事件迴圈
//   ✅ 封閉的訊息變體集合，邊界解析失敗即丟棄
//   ✅ 盡力而為廣播：序列化一次、逐個發送、失敗跳過、不重試不排隊

// Relay 房間註冊表與訊息中繼
type Relay struct {
	rooms  map[string]map[string]*Connection // room -> playerID -> Connection
	conns  map[*Connection]struct{}          // 所有已接受的連接（含尚未 join 的）
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRelay 建立中繼
func NewRelay(logger *slog.Logger) *Relay {
	return &Relay{
		rooms:  make(map[string]map[string]*Connection),
		conns:  make(map[*Connection]struct{}),
		logger: logger,
	}
}

// Register 接受一個新連接，回傳其狀態記錄
func (r *Relay) Register(peer Peer) *Connection {
	conn := newConnection(peer)

	r.mu.Lock()
	r.conns[conn] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("新客戶端連接", "conn_id", conn.ID)
	return conn
}

// Disconnect 處理連接關閉（對端關閉、錯誤或強制終止）
//
// 走與顯式 leave 相同的路徑，確保房間成員不會殘留死連接。
// 可安全重複呼叫：已離開的連接是 no-op。
func (r *Relay) Disconnect(conn *Connection) {
	r.mu.Lock()
	if _, exists := r.conns[conn]; !exists {
		r.mu.Unlock()
		return
	}
	delete(r.conns, conn)
	r.leaveLocked(conn)
	r.mu.Unlock()

	r.logger.Info("客戶端斷線", "conn_id", conn.ID)
}

// ConfirmAlive 傳輸層活性回應（WebSocket Pong）重置活性狀態
func (r *Relay) ConfirmAlive(conn *Connection) {
	r.mu.Lock()
	conn.IsAlive = true
	conn.LastHeartbeat = time.Now()
	r.mu.Unlock()
}

// HandleMessage 解析入站訊框並按類型分派
//
// 錯誤處理策略（全部就地消化，不影響連接）：
//   - 解析失敗：記錄後丟棄
//   - 未知類型：記錄後丟棄
//   - 需要房間的操作但尚未 join：靜默忽略，不視為錯誤
func (r *Relay) HandleMessage(conn *Connection, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Error("解析訊息失敗", "error", err, "conn_id", conn.ID)
		return
	}

	switch env.Type {
	case TypeJoin:
		var p joinPayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析 join 訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		r.handleJoin(conn, p)
	case TypeLeave:
		r.handleLeave(conn)
	case TypeSync:
		var p syncPayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析 sync 訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		r.handleSync(conn, p)
	case TypeHeartbeat:
		r.handleHeartbeat(conn)
	case TypeLobbyPlayerJoined:
		var p lobbyPlayerJoinedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析大廳訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		p.Type = TypeLobbyPlayerJoined
		r.handleLobbyRelay(conn, p)
	case TypeLobbyPlayerLeft:
		var p lobbyPlayerLeftPayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析大廳訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		p.Type = TypeLobbyPlayerLeft
		r.handleLobbyRelay(conn, p)
	case TypeLobbyPlayerReady:
		var p lobbyPlayerReadyPayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析大廳訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		p.Type = TypeLobbyPlayerReady
		r.handleLobbyRelay(conn, p)
	case TypeLobbySettingsUpdate:
		var p lobbySettingsUpdatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析大廳訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		p.Type = TypeLobbySettingsUpdate
		r.handleLobbyRelay(conn, p)
	case TypeLobbyGameStart:
		var p lobbyGameStartPayload
		if err := json.Unmarshal(data, &p); err != nil {
			r.logger.Error("解析大廳訊息失敗", "error", err, "conn_id", conn.ID)
			return
		}
		p.Type = TypeLobbyGameStart
		r.handleLobbyRelay(conn, p)
	default:
		r.logger.Warn("未知的訊息類型", "type", env.Type, "conn_id", conn.ID)
	}
}

// handleJoin 把連接綁定到房間
//
// 房間在第一個 join 時惰性建立。同一房間內相同 player_id 的第二次
// join 直接覆蓋舊條目：被擠掉的連接保持開啟、仍會收到廣播，只是
// 再也無法以 player_id 找到。不做碰撞保護。
func (r *Relay) handleJoin(conn *Connection, p joinPayload) {
	if p.Room == "" {
		r.logger.Warn("join 缺少房間識別碼", "conn_id", conn.ID)
		return
	}

	r.mu.Lock()

	members := r.rooms[p.Room]
	if members == nil {
		members = make(map[string]*Connection)
		r.rooms[p.Room] = members
	}

	conn.Room = p.Room
	conn.PlayerID = p.PlayerID
	conn.PlayerName = p.PlayerName
	members[p.PlayerID] = conn

	// 通知房內其他人有新玩家
	r.broadcastLocked(p.Room, playerJoinedMessage{
		Type:       TypePlayerJoined,
		PlayerID:   p.PlayerID,
		PlayerName: p.PlayerName,
	}, conn)

	// 回覆加入者當前成員快照（不含自己、只含仍開啟的連接）
	existing := make([]PlayerInfo, 0, len(members))
	for id, member := range members {
		if id == p.PlayerID || !member.Peer.IsOpen() {
			continue
		}
		existing = append(existing, PlayerInfo{
			PlayerID:   id,
			PlayerName: member.PlayerName,
		})
	}
	if len(existing) > 0 {
		r.sendLocked(conn, existingPlayersMessage{
			Type:    TypeExistingPlayers,
			Players: existing,
		})
	}

	r.mu.Unlock()

	r.logger.Info("玩家加入房間",
		"room", p.Room,
		"player_id", p.PlayerID,
		"player_name", p.PlayerName)
}

// handleLeave 顯式離開房間
func (r *Relay) handleLeave(conn *Connection) {
	r.mu.Lock()
	r.leaveLocked(conn)
	r.mu.Unlock()
}

// leaveLocked 把連接從其房間移除，最後一個成員離開時刪除房間
//
// 冪等：沒有房間歸屬的連接是 no-op，不廣播也不報錯。
// 呼叫者必須持有 r.mu。
func (r *Relay) leaveLocked(conn *Connection) {
	if conn.Room == "" {
		return
	}

	room, playerID := conn.Room, conn.PlayerID
	conn.Room = ""

	members, exists := r.rooms[room]
	if !exists {
		return
	}

	delete(members, playerID)

	r.broadcastLocked(room, playerLeftMessage{
		Type:     TypePlayerLeft,
		PlayerID: playerID,
	}, conn)

	r.logger.Info("玩家離開房間", "room", room, "player_id", playerID)

	if len(members) == 0 {
		delete(r.rooms, room)
		r.logger.Info("房間已關閉（無成員）", "room", room)
	}
}

// handleSync 把狀態同步原樣轉發給房內其他成員，附上發送者身份
func (r *Relay) handleSync(conn *Connection, p syncPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 尚未 join 的靜默保護
	if conn.Room == "" {
		return
	}

	r.broadcastLocked(conn.Room, syncBroadcast{
		Type:        TypeSync,
		PlayerID:    conn.PlayerID,
		syncPayload: p,
	}, conn)
}

// handleHeartbeat 應用層心跳：重置活性並回覆 pong
func (r *Relay) handleHeartbeat(conn *Connection) {
	now := time.Now()

	r.mu.Lock()
	conn.IsAlive = true
	conn.LastHeartbeat = now
	r.sendLocked(conn, pongMessage{
		Type:      TypePong,
		Timestamp: now.UnixMilli(),
	})
	r.mu.Unlock()
}

// handleLobbyRelay 大廳訊息統一走轉發路徑：排除發送者廣播給房間
func (r *Relay) handleLobbyRelay(conn *Connection, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.Room == "" {
		return
	}

	r.broadcastLocked(conn.Room, msg, conn)
}

// broadcastLocked 把訊息廣播給房間所有開啟的成員，跳過 exclude
//
// 序列化一次後發送相同位元組。盡力而為：已關閉或尚未回收的連接
// 靜默跳過，不重試、不為其排隊。對不存在的房間靜默失敗為「無收件者」。
// 呼叫者必須持有 r.mu。
func (r *Relay) broadcastLocked(room string, msg any, exclude *Connection) {
	members, exists := r.rooms[room]
	if !exists {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("序列化廣播訊息失敗", "error", err, "room", room)
		return
	}

	for _, member := range members {
		if member == exclude || !member.Peer.IsOpen() {
			continue
		}
		member.Peer.Send(data)
	}
}

// sendLocked 對單一連接發送訊息。呼叫者必須持有 r.mu
func (r *Relay) sendLocked(conn *Connection, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("序列化訊息失敗", "error", err, "conn_id", conn.ID)
		return
	}
	if conn.Peer.IsOpen() {
		conn.Peer.Send(data)
	}
}

// evictStale 清理掃描的第一階段
//
// 超過硬超時的連接直接剔除（不等探測往返），其餘標記為待確認並
// 發送傳輸層探測。回傳（探測數, 剔除數）。
func (r *Relay) evictStale(timeout time.Duration) (probed, evicted int) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for conn := range r.conns {
		if !conn.Peer.IsOpen() {
			continue
		}

		if now.Sub(conn.LastHeartbeat) > timeout {
			r.logger.Warn("連接心跳超時，強制終止",
				"conn_id", conn.ID,
				"player_id", conn.PlayerID,
				"elapsed", now.Sub(conn.LastHeartbeat))
			r.evictLocked(conn)
			evicted++
			continue
		}

		conn.IsAlive = false
		conn.Peer.Ping()
		probed++
	}

	return probed, evicted
}

// reapUnconfirmed 清理掃描的第二階段
//
// 寬限期過後仍未確認活性（沒有 pong 也沒有心跳）的連接剔除。
// 期間已消失的連接自然不在集合裡，跳過而非報錯。回傳剔除數。
func (r *Relay) reapUnconfirmed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for conn := range r.conns {
		if !conn.Peer.IsOpen() || conn.IsAlive {
			continue
		}

		r.logger.Warn("連接未回應探測，強制終止",
			"conn_id", conn.ID,
			"player_id", conn.PlayerID)
		r.evictLocked(conn)
		evicted++
	}

	return evicted
}

// evictLocked 強制終止連接並走 leave 路徑。呼叫者必須持有 r.mu
func (r *Relay) evictLocked(conn *Connection) {
	conn.Peer.Terminate()
	delete(r.conns, conn)
	r.leaveLocked(conn)
}

// Shutdown 關閉所有連接並清空註冊表
func (r *Relay) Shutdown() {
	r.mu.Lock()
	for conn := range r.conns {
		conn.Peer.Terminate()
	}
	r.conns = make(map[*Connection]struct{})
	r.rooms = make(map[string]map[string]*Connection)
	r.mu.Unlock()

	r.logger.Info("中繼已停止")
}

// RoomMembers 取得房間成員的 player_id 快照，房間不存在時回傳 nil
func (r *Relay) RoomMembers(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[room]
	if !exists {
		return nil
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Stats 統計資訊
func (r *Relay) Stats() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	totalPlayers := 0
	roomSizes := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		roomSizes[room] = len(members)
		totalPlayers += len(members)
	}

	return map[string]any{
		"total_connections": len(r.conns),
		"total_rooms":       len(r.rooms),
		"total_players":     totalPlayers,
		"rooms":             roomSizes,
	}
}
