package internal

import "encoding/json"

// 訊息類型設計：
//
// 客戶端傳來的每個訊框都是一個 JSON 物件，必帶 `type` 欄位，其餘欄位依
// 類型而定。這裡把動態的 JSON 收斂成一組封閉的訊息變體：先解出 type，
// 再按類型解析對應的 payload 結構，任何不符合已知類型的訊框在邊界直接
// 丟棄，不讓開放式的動態結構流進處理器。
//
// 遊戲內容欄位（位置、速度、設定、種子等）對中繼伺服器是不透明的，
// 使用 json.RawMessage 原封不動轉發，不做語意驗證。

// 入站訊息類型
const (
	TypeJoin                = "join"
	TypeLeave               = "leave"
	TypeSync                = "sync"
	TypeHeartbeat           = "heartbeat"
	TypeLobbyPlayerJoined   = "lobby_player_joined"
	TypeLobbyPlayerLeft     = "lobby_player_left"
	TypeLobbyPlayerReady    = "lobby_player_ready"
	TypeLobbySettingsUpdate = "lobby_settings_update"
	TypeLobbyGameStart      = "lobby_game_start"
)

// 出站訊息類型
const (
	TypePlayerJoined    = "player_joined"
	TypePlayerLeft      = "player_left"
	TypeExistingPlayers = "existing_players"
	TypePong            = "pong"
)

// envelope 只解出 type，其餘欄位留給各處理器按類型解析
type envelope struct {
	Type string `json:"type"`
}

// joinPayload 加入房間請求
type joinPayload struct {
	Room       string `json:"room"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

// syncPayload 遊戲狀態同步。所有欄位對中繼不透明，原樣轉發
type syncPayload struct {
	P           json.RawMessage `json:"p,omitempty"`            // 位置
	V           json.RawMessage `json:"v,omitempty"`            // 速度
	S           json.RawMessage `json:"s,omitempty"`            // 分數
	H           json.RawMessage `json:"h,omitempty"`            // 高度
	C           json.RawMessage `json:"c,omitempty"`            // 連擊
	Stocks      json.RawMessage `json:"stocks,omitempty"`       // 剩餘生命
	IsSpectator json.RawMessage `json:"is_spectator,omitempty"` // 觀戰者狀態
}

// syncBroadcast 附上發送者身份後轉發給房間其他成員
type syncBroadcast struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	syncPayload
}

// lobbyPlayerJoinedPayload 大廳玩家加入通知
type lobbyPlayerJoinedPayload struct {
	Type       string          `json:"type"`
	PlayerID   string          `json:"player_id"`
	PlayerName string          `json:"player_name"`
	Character  json.RawMessage `json:"character,omitempty"`
}

// lobbyPlayerLeftPayload 大廳玩家離開通知
type lobbyPlayerLeftPayload struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

// lobbyPlayerReadyPayload 大廳準備狀態切換
type lobbyPlayerReadyPayload struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	Ready    bool   `json:"ready"`
}

// lobbySettingsUpdatePayload 大廳設定更新，settings 內容不透明
type lobbySettingsUpdatePayload struct {
	Type     string          `json:"type"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// lobbyGameStartPayload 開始遊戲信號，攜帶隨機種子
type lobbyGameStartPayload struct {
	Type string          `json:"type"`
	Seed json.RawMessage `json:"seed,omitempty"`
}

// PlayerInfo 房間成員快照中的單個玩家
type PlayerInfo struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

// playerJoinedMessage 通知房內其他成員有新玩家加入
type playerJoinedMessage struct {
	Type       string `json:"type"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

// playerLeftMessage 通知房內其他成員有玩家離開
type playerLeftMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

// existingPlayersMessage 回覆新加入者當前的成員快照（不含自己）
type existingPlayersMessage struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

// pongMessage 應用層心跳的回應
type pongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
